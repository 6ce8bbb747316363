package document

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// StructurePolicy 多种标题格式同时存在时的处理策略
type StructurePolicy int

const (
	// FirstMatchWins 按优先级使用第一个有匹配的标题格式，其余格式不再考虑
	FirstMatchWins StructurePolicy = iota
	// MergeAll 合并所有标题格式，按出现位置排序
	MergeAll
)

// String 返回策略名称
func (p StructurePolicy) String() string {
	switch p {
	case FirstMatchWins:
		return "first_match_wins"
	case MergeAll:
		return "merge_all"
	default:
		return "unknown"
	}
}

// ParseStructurePolicy 解析策略名称，无法识别时返回FirstMatchWins
func ParseStructurePolicy(name string) StructurePolicy {
	if strings.EqualFold(strings.TrimSpace(name), MergeAll.String()) {
		return MergeAll
	}
	return FirstMatchWins
}

// HeadingKind 标题类型
type HeadingKind string

const (
	HeadingChapter  HeadingKind = "chapter"
	HeadingSection  HeadingKind = "section"
	HeadingNumbered HeadingKind = "numbered"
)

type headingPattern struct {
	kind HeadingKind
	re   *regexp.Regexp
}

// headingPatterns 按优先级排列
var headingPatterns = []headingPattern{
	{kind: HeadingChapter, re: regexp.MustCompile(`(?im)^Chapter\s+\d+[:\s]+(.+)$`)},
	{kind: HeadingSection, re: regexp.MustCompile(`(?im)^Section\s+\d+[:\s]+(.+)$`)},
	{kind: HeadingNumbered, re: regexp.MustCompile(`(?m)^\d+\.\s+(.+)$`)},
}

// Section 从文本中识别出的章节区间 [Start, End)，偏移按字符计算
type Section struct {
	Title   string      `json:"title"`
	Kind    HeadingKind `json:"kind"`
	Start   int         `json:"start"`
	End     int         `json:"end"`
	Chapter string      `json:"chapter,omitempty"` // 所属章标题，仅MergeAll策略下填充
}

// Contains 判断偏移是否落在章节区间内
func (s Section) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

type headingMatch struct {
	kind  HeadingKind
	title string
	start int // 字节偏移
}

// ExtractStructure 识别文本中的章节结构
// 没有任何匹配时返回空切片
func ExtractStructure(text string, policy StructurePolicy) []Section {
	var matches []headingMatch

	for _, pattern := range headingPatterns {
		found := findHeadings(text, pattern)
		if policy == FirstMatchWins {
			if len(found) > 0 {
				matches = found
				break
			}
			continue
		}
		matches = append(matches, found...)
	}

	if len(matches) == 0 {
		return []Section{}
	}

	if policy == MergeAll {
		// 同一位置保留优先级更高的标题
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].start < matches[j].start
		})
		deduped := matches[:1]
		for _, m := range matches[1:] {
			if m.start != deduped[len(deduped)-1].start {
				deduped = append(deduped, m)
			}
		}
		matches = deduped
	}

	total := utf8.RuneCountInString(text)
	counter := newRuneCounter(text)

	sections := make([]Section, len(matches))
	for i, m := range matches {
		sections[i] = Section{
			Title: m.title,
			Kind:  m.kind,
			Start: counter.offset(m.start),
		}
	}
	for i := range sections {
		if i+1 < len(sections) {
			sections[i].End = sections[i+1].Start
		} else {
			sections[i].End = total
		}
	}

	if policy == MergeAll {
		chapter := ""
		for i := range sections {
			if sections[i].Kind == HeadingChapter {
				chapter = sections[i].Title
			}
			sections[i].Chapter = chapter
		}
	}
	return sections
}

func findHeadings(text string, pattern headingPattern) []headingMatch {
	locs := pattern.re.FindAllStringSubmatchIndex(text, -1)
	matches := make([]headingMatch, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, headingMatch{
			kind:  pattern.kind,
			title: strings.TrimSpace(text[loc[2]:loc[3]]),
			start: loc[0],
		})
	}
	return matches
}

// sectionAt 二分查找包含偏移的章节
func sectionAt(sections []Section, offset int) (Section, bool) {
	i := sort.Search(len(sections), func(i int) bool {
		return sections[i].Start > offset
	})
	if i == 0 {
		return Section{}, false
	}
	if s := sections[i-1]; s.Contains(offset) {
		return s, true
	}
	return Section{}, false
}
