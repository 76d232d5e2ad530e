package data

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/qedus/osmpbf"

	"github.com/catenarytransit/cypress/internal/biz"
)

// skipLogEvery 解析跳过的记录间隔：每 1000 条打一行。
const skipLogEvery = 1000

// PBFSource OSM PBF 文件的可重复扫描源。
// 每次 Scan 重新打开文件；块解码并行，回调保持文件内顺序。
type PBFSource struct {
	path string
	log  *log.Helper
}

// NewPBFSource 校验文件可读后构造源。
func NewPBFSource(path string, logger log.Logger) (*PBFSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat pbf file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("pbf path %s is a directory", path)
	}
	return &PBFSource{path: path, log: log.NewHelper(logger)}, nil
}

// Scan 顺序解码整个文件并分发实体。
func (s *PBFSource) Scan(ctx context.Context, h biz.EntityHandler) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open pbf file %s: %w", s.path, err)
	}
	defer f.Close()

	decoder := osmpbf.NewDecoder(f)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return fmt.Errorf("start pbf decoder: %w", err)
	}

	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("decode pbf block: %w", err)
		}

		switch entity := v.(type) {
		case *osmpbf.Node:
			if h.Node == nil {
				continue
			}
			node := &biz.Node{ID: entity.ID, Lat: entity.Lat, Lon: entity.Lon, Tags: biz.Tags(entity.Tags)}
			if err := h.Node(node); err != nil {
				return err
			}
		case *osmpbf.Way:
			if h.Way == nil {
				continue
			}
			way := &biz.Way{ID: entity.ID, NodeIDs: entity.NodeIDs, Tags: biz.Tags(entity.Tags)}
			if err := h.Way(way); err != nil {
				return err
			}
		case *osmpbf.Relation:
			if h.Relation == nil {
				continue
			}
			rel := &biz.Relation{ID: entity.ID, Tags: biz.Tags(entity.Tags)}
			rel.Members = make([]biz.Member, 0, len(entity.Members))
			for _, m := range entity.Members {
				member := biz.Member{ID: m.ID, Role: m.Role}
				switch m.Type {
				case osmpbf.NodeType:
					member.Type = biz.MemberNode
				case osmpbf.WayType:
					member.Type = biz.MemberWay
				case osmpbf.RelationType:
					member.Type = biz.MemberRelation
				default:
					skipped++
					if skipped%skipLogEvery == 0 {
						s.log.Warnf("skipped %d unrecognized members so far", skipped)
					}
					continue
				}
				rel.Members = append(rel.Members, member)
			}
			if err := h.Relation(rel); err != nil {
				return err
			}
		default:
			skipped++
			if skipped%skipLogEvery == 0 {
				s.log.Warnf("skipped %d unrecognized entities so far", skipped)
			}
		}
	}
	return nil
}
