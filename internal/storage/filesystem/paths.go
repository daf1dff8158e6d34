package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

const (
	maxSegmentLen = 200
	maxBaseLen    = 2000
)

// segmentReplacer 把不能出现在单个路径段里的字符换成下划线
var segmentReplacer = newSegmentReplacer()

func newSegmentReplacer() *strings.Replacer {
	reserved := []string{"/", "\x00"}
	if runtime.GOOS == "windows" {
		reserved = append(reserved, "<", ">", ":", "\"", "|", "?", "*", "\\")
	}
	pairs := make([]string, 0, len(reserved)*2)
	for _, r := range reserved {
		pairs = append(pairs, r, "_")
	}
	return strings.NewReplacer(pairs...)
}

// safeSegment 把空间 key、lineage ID 或文件名转换成单个安全的路径段
//
// 结果不含分隔符与控制字符，超长时截断并保留扩展名，空结果返回 "unnamed"。
func safeSegment(name string) string {
	name = segmentReplacer.Replace(filepath.Base(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > maxSegmentLen {
		ext := filepath.Ext(name)
		if keep := maxSegmentLen - len(ext); keep > 0 {
			name = strings.TrimSuffix(name, ext)[:keep] + ext
		} else {
			name = name[:maxSegmentLen]
		}
	}

	name = strings.Trim(name, " .")
	if name == "" {
		return "unnamed"
	}
	return name
}

// cleanBase 校验并规范化存储根目录
func cleanBase(base string) (string, error) {
	if len(base) > maxBaseLen {
		return "", fmt.Errorf("path too long: %d characters", len(base))
	}
	if strings.Contains(base, "..") {
		return "", fmt.Errorf("path traversal detected: %s", base)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return filepath.Clean(base), nil
	}
	return abs, nil
}
