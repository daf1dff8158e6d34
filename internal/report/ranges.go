package report

import (
	"strconv"
	"strings"
)

// CompressVersions 将升序版本号压缩为区间表示
//
// 连续的版本号输出为 [first-last]，孤立的版本号原样输出，各段以 ", " 分隔。
// 例如 [1,2,3,7,8,10] 输出 "[1-3], [7-8], 10"。
func CompressVersions(versions []int) string {
	if len(versions) == 0 {
		return ""
	}

	var parts []string
	first, prior := versions[0], versions[0]
	for _, v := range versions[1:] {
		if v-prior > 1 {
			parts = append(parts, span(first, prior))
			first = v
		}
		prior = v
	}
	parts = append(parts, span(first, prior))
	return strings.Join(parts, ", ")
}

func span(first, last int) string {
	if first == last {
		return strconv.Itoa(first)
	}
	return "[" + strconv.Itoa(first) + "-" + strconv.Itoa(last) + "]"
}
