package biz

import (
	"context"
	"strings"
	"time"
)

// SourceStem 提取文件名的规范词干：去目录、去 .osm.pbf/.pbf 后缀、
// 去编排环节附加的 -filtered/-admins 修饰。写入与删除都使用同一词干。
func SourceStem(path string) string {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".osm.pbf")
	name = strings.TrimSuffix(name, ".pbf")
	name = strings.TrimSuffix(name, ".osm")
	name = strings.TrimSuffix(name, "-filtered")
	name = strings.TrimSuffix(name, "-admins")
	return name
}

// SourceVersion 辅助索引中的版本记录，按 source_file 词干为键。
type SourceVersion struct {
	SourceFile      string     `json:"source_file"`
	CurrentVersion  int64      `json:"current_version"`
	PreviousVersion int64      `json:"previous_version"`
	FileHash        string     `json:"file_hash,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// VersionRepo 版本记录的读写。单写者：仅导入进程串行调用。
type VersionRepo interface {
	Get(ctx context.Context, sourceFile string) (*SourceVersion, error)
	Put(ctx context.Context, v *SourceVersion) error
	// Reset 删除整个版本辅助索引。
	Reset(ctx context.Context) error
}
