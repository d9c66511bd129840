package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
)

type fakePhotoRepo struct {
	repository.PhotoRepository
	slugs []string
	err   error
}

func (f *fakePhotoRepo) SlugsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, s := range f.slugs {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeTagRepo struct {
	calls [][]string
}

func (f *fakeTagRepo) FindOrCreate(_ context.Context, names []string) ([]*model.Tag, error) {
	f.calls = append(f.calls, names)
	tags := make([]*model.Tag, len(names))
	for i, n := range names {
		tags[i] = &model.Tag{ID: uint(i + 1), Name: n}
	}
	return tags, nil
}

var uploadDay = time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)

func baseInput(size int64) AssembleInput {
	return AssembleInput{
		Command:       model.UploadFileCommand{RawFilename: "beach.jpg", UploadedAt: uploadDay},
		SanitizedName: "beach.jpg",
		Source: model.FilepathRecord{
			Dimension: model.DimensionSource, Directory: "source/2026-10-14", Filename: "beach.jpg",
			Size: size, Width: 2000, Height: 1500,
		},
	}
}

func newTestAssembler(slugs ...string) *Assembler {
	return NewAssembler(&fakePhotoRepo{slugs: slugs}, &fakeTagRepo{}, Thresholds{Large: 5 << 20, Small: 1 << 20})
}

func TestAssembleDefaults(t *testing.T) {
	draft, err := newTestAssembler().Assemble(context.Background(), baseInput(9_000_000))
	require.NoError(t, err)

	require.Equal(t, "2026-10-14-beach", draft.Slug)
	require.Equal(t, "beach.jpg", draft.Title)
	require.Equal(t, "beach.jpg - 2000x1500, 9.0 MB.", draft.Summary)
	require.Equal(t, "Uploaded in October 2026 to source/2026-10-14. 2000x1500 pixels, 9.0 MB.", draft.Description)
	require.Equal(t, "2026-10-14", draft.DateBucket)
	require.True(t, draft.CapturedAt.Equal(uploadDay), "没有拍摄时间时回退到上传时间")
	require.Equal(t, []string{TagHD}, draft.TagNames)
	require.Len(t, draft.Filepaths, 1)
}

func TestAssembleSizeTags(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		expected []string
	}{
		{name: "恰好等于大图阈值", size: 5 << 20, expected: []string{TagHD}},
		{name: "小于小图阈值", size: 1<<20 - 1, expected: []string{TagSD}},
		{name: "恰好等于小图阈值", size: 1 << 20, expected: nil},
		{name: "介于两者之间", size: 3 << 20, expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := newTestAssembler().Assemble(context.Background(), baseInput(tt.size))
			require.NoError(t, err)
			require.Equal(t, tt.expected, draft.TagNames)
		})
	}
}

func TestAssembleConflictAndCapture(t *testing.T) {
	in := baseInput(3 << 20)
	in.Conflicts = 1
	in.Source.Filename = "beach_copy.jpg"
	captured := time.Date(2019, 7, 2, 18, 0, 0, 0, time.UTC)
	in.CapturedAt = &captured
	in.Command.Tags = []string{"海边", "Copy"}

	draft, err := newTestAssembler("2026-10-14-beach").Assemble(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, "2026-10-14-beach-2", draft.Slug)
	require.Equal(t, "beach.jpg (#1)", draft.Title)
	require.Equal(t, []string{"海边", "Copy", "2019"}, draft.TagNames, "用户标签在前且不重复")
	require.Equal(t,
		"Taken in July 2019, uploaded to source/2026-10-14. 2000x1500 pixels, 3.1 MB. Renamed to beach_copy.jpg because the name was already taken.",
		draft.Description)
	require.True(t, draft.CapturedAt.Equal(captured))
}

func TestAssembleSameDayCaptureIsNotTaken(t *testing.T) {
	in := baseInput(3 << 20)
	captured := uploadDay.Add(-2 * time.Hour)
	in.CapturedAt = &captured

	draft, err := newTestAssembler().Assemble(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, draft.TagNames, "拍摄日期与上传日期相同时不打年份标签")
	require.True(t, strings.HasPrefix(draft.Description, "Uploaded"))
}

func TestAssembleOverrides(t *testing.T) {
	in := baseInput(3 << 20)
	in.Command.Title = "日落"
	in.Command.Slug = "My Sunset!"
	in.Command.Summary = strings.Repeat("长", 300)

	draft, err := newTestAssembler().Assemble(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "日落", draft.Title)
	require.Equal(t, "my-sunset", draft.Slug)
	require.Equal(t, MaxSummaryLength, utf8.RuneCountInString(draft.Summary))
	require.True(t, strings.HasSuffix(draft.Summary, "..."))
}

func TestAssembleSlugDisambiguation(t *testing.T) {
	draft, err := newTestAssembler("2026-10-14-beach", "2026-10-14-beach-2", "2026-10-14-beach-3").
		Assemble(context.Background(), baseInput(10))
	require.NoError(t, err)
	require.Equal(t, "2026-10-14-beach-4", draft.Slug)
}

func TestAssembleLongSlugIsTruncated(t *testing.T) {
	in := baseInput(10)
	in.SanitizedName = strings.Repeat("a", 200) + ".jpg"

	draft, err := newTestAssembler().Assemble(context.Background(), in)
	require.NoError(t, err)
	require.LessOrEqual(t, utf8.RuneCountInString(draft.Slug), MaxSlugLength)
	require.True(t, strings.HasSuffix(draft.Slug, "-211"), "超长 slug 带原长度后缀")
}

func TestAssembleRepositoryError(t *testing.T) {
	a := NewAssembler(&fakePhotoRepo{err: errors.New("db down")}, &fakeTagRepo{}, Thresholds{})
	_, err := a.Assemble(context.Background(), baseInput(10))
	require.ErrorIs(t, err, constant.ErrExternal)
}

func TestResolveTags(t *testing.T) {
	tags := &fakeTagRepo{}
	a := NewAssembler(&fakePhotoRepo{}, tags, Thresholds{})

	resolved, err := a.ResolveTags(context.Background(), &model.PhotoDraft{TagNames: []string{"HD", "Copy"}})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.Len(t, tags.calls, 1)

	resolved, err = a.ResolveTags(context.Background(), &model.PhotoDraft{})
	require.NoError(t, err)
	require.Empty(t, resolved)
	require.Len(t, tags.calls, 1, "没有标签时不访问仓储")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "大写转小写", in: "Beach", expected: "beach"},
		{name: "空格与符号", in: "My Photo (1)", expected: "my-photo-1"},
		{name: "保留下划线", in: "a_b-c", expected: "a_b-c"},
		{name: "非ASCII字符", in: "海边日落", expected: ""},
		{name: "HTML转义后的实体", in: "tom&amp;jerry", expected: "tom-amp-jerry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Slugify(tt.in))
		})
	}
}
