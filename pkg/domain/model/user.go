// in internal/domain/model/user.go
package model

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ========= 业务常量 (与数据库实现无关) =========

// 权限常量定义了调用方操作的权限位
const (
	PermissionAdmin       uint = 0
	PermissionViewPhoto   uint = 1
	PermissionCreatePhoto uint = 2
)

// maxPermissionBits 是 JSON 序列化时检查的权限位上限
const maxPermissionBits = 32

// ========= 调用方身份 =========

// Identity 是一次请求的调用方身份，由认证中间件解析得到
type Identity struct {
	UserID        uint
	PublicID      string
	Permissions   Boolset
	Authenticated bool
}

// Anonymous 返回一个未登录的游客身份
func Anonymous(guest Boolset) Identity {
	return Identity{Permissions: guest}
}

// Can 判断调用方是否拥有某个权限位，管理员拥有全部权限
func (i Identity) Can(bit uint) bool {
	return i.Permissions.Enabled(PermissionAdmin) || i.Permissions.Enabled(bit)
}

// Satisfies 判断调用方是否满足所要求的全部权限位
func (i Identity) Satisfies(required Boolset) bool {
	if i.Permissions.Enabled(PermissionAdmin) {
		return true
	}
	return i.Permissions.Contains(required)
}

// ========= 权限位集合 =========

type Boolset []byte

func (bs Boolset) Value() (driver.Value, error) {
	if len(bs) == 0 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(bs), nil
}

func (bs *Boolset) Scan(value interface{}) error {
	if value == nil {
		*bs = nil
		return nil
	}
	var encoded string
	switch v := value.(type) {
	case []byte:
		encoded = string(v)
	case string:
		encoded = v
	default:
		return errors.New("unsupported type for Boolset scan")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	*bs = decoded
	return nil
}

func (bs Boolset) Enabled(n uint) bool {
	byteIndex := n / 8
	bitIndex := n % 8
	if byteIndex >= uint(len(bs)) {
		return false
	}
	return (bs[byteIndex] & (1 << bitIndex)) != 0
}

func (bs *Boolset) Set(n uint, value bool) {
	byteIndex := n / 8
	bitIndex := n % 8
	requiredLen := int(byteIndex + 1)
	if requiredLen > len(*bs) {
		newSlice := make([]byte, requiredLen)
		copy(newSlice, *bs)
		*bs = newSlice
	}
	if value {
		(*bs)[byteIndex] |= (1 << bitIndex)
	} else {
		(*bs)[byteIndex] &^= (1 << bitIndex)
	}
}

// Contains 判断 required 中置位的每一位在 bs 中都已置位
func (bs Boolset) Contains(required Boolset) bool {
	for i, b := range required {
		var have byte
		if i < len(bs) {
			have = bs[i]
		}
		if have&b != b {
			return false
		}
	}
	return true
}

// NewBoolset 创建一个新的 Boolset，初始化指定的索引为 true
func NewBoolset(indices ...uint) Boolset {
	bs := Boolset{}
	for _, index := range indices {
		bs.Set(index, true)
	}
	return bs
}

func (bs Boolset) MarshalJSON() ([]byte, error) {
	permissions := []uint{}
	for i := uint(0); i < maxPermissionBits; i++ {
		if bs.Enabled(i) {
			permissions = append(permissions, i)
		}
	}
	return json.Marshal(permissions)
}

func (bs *Boolset) UnmarshalJSON(data []byte) error {
	var permissions []uint
	if err := json.Unmarshal(data, &permissions); err != nil {
		return err
	}
	*bs = Boolset{}
	for _, p := range permissions {
		bs.Set(p, true)
	}
	return nil
}
