package biz

import "strings"

// DefaultName name bundle 中无修饰 name 标签对应的键。
const DefaultName = "default"

// NameBundle 语言码到显示名的映射。键小写，default 表示未限定语言的 name。
type NameBundle map[string]string

// Empty 判断 bundle 是否为空。
func (n NameBundle) Empty() bool { return len(n) == 0 }

// Default 返回 default 名称；缺失时按偏好顺序回退，再退到任意变体。
func (n NameBundle) Default(preference []string) string {
	if v, ok := n[DefaultName]; ok {
		return v
	}
	for _, lang := range preference {
		if v, ok := n[lang]; ok {
			return v
		}
	}
	for _, v := range n {
		return v
	}
	return ""
}

// Fill 用偏好顺序补齐缺失的 default 键。
func (n NameBundle) Fill(preference []string) {
	if _, ok := n[DefaultName]; ok || len(n) == 0 {
		return
	}
	n[DefaultName] = n.Default(preference)
}

// alternate name 标签；带 :lang 后缀的变体同样收录。
var nameVariants = []string{
	"alt_name", "old_name", "official_name", "short_name",
	"int_name", "nat_name", "reg_name", "loc_name",
}

// ExtractNames 从标签表提取 name bundle。
// name → default，name:xx → xx；alt_name 等备名按原键收录。
func ExtractNames(tags Tags) NameBundle {
	bundle := NameBundle{}
	for key, value := range tags {
		if value == "" {
			continue
		}
		if key == "name" {
			bundle[DefaultName] = value
			continue
		}
		if lang, ok := strings.CutPrefix(key, "name:"); ok {
			if ValidLangCode(lang) {
				bundle[strings.ToLower(lang)] = value
			}
			continue
		}
		for _, variant := range nameVariants {
			if key == variant {
				bundle[variant] = value
				break
			}
			if suffix, ok := strings.CutPrefix(key, variant+":"); ok {
				if ValidLangCode(suffix) {
					bundle[strings.ToLower(key)] = value
				}
				break
			}
		}
	}
	return bundle
}

// ValidLangCode 粗检语言码：2~10 位字母或连字符。
func ValidLangCode(lang string) bool {
	if len(lang) < 2 || len(lang) > 10 {
		return false
	}
	for _, c := range lang {
		alpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !alpha && c != '-' {
			return false
		}
	}
	return true
}
