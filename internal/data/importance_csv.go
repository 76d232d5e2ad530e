package data

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/catenarytransit/cypress/internal/biz"
)

// LoadImportance 读取 wikidata_id,score 两列 CSV（可带表头、可 gzip），
// 评分截断到 [0,1]。
func LoadImportance(path string, logger log.Logger) (biz.ImportanceTable, error) {
	helper := log.NewHelper(logger)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open importance file %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open importance file %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	table := make(biz.ImportanceTable)
	row, skipped := 0, 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read importance file %s: %w", path, err)
		}
		row++
		if len(record) < 2 {
			skipped++
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			// 首行解析失败当表头处理
			if row == 1 {
				continue
			}
			skipped++
			continue
		}
		table[strings.TrimSpace(record[0])] = min(max(score, 0), 1)
	}

	if skipped > 0 {
		helper.Warnf("importance file %s: skipped %d malformed rows", path, skipped)
	}
	helper.Infof("loaded %d importance scores from %s", len(table), path)
	return table, nil
}
