package entity

// WordRange 字数目标约束
type WordRange struct {
	Min      int
	Max      int
	Default  int
	Required bool
}

// Structure 输出结构描述，供提示词和后处理共用
type Structure struct {
	// Directive 写入提示词的结构要求
	Directive string
	// RequireTitle 需要 H1 标题
	RequireTitle bool
	// MinSections 至少需要的 H2 小节数
	MinSections int
	// ClosingKeywords 至少一个小节标题包含其中之一
	ClosingKeywords []string
	// RequireSubject 需要 "Subject:" 行
	RequireSubject bool
	// Hashtags 是否提取话题标签
	Hashtags bool
}

// ContentTypeSpec 内容类型注册信息
type ContentTypeSpec struct {
	Type          ContentType
	DefaultTone   Tone
	Words         WordRange
	DefaultParams GenerationParams
	Structure     Structure
}

var registry = map[ContentType]ContentTypeSpec{
	ContentTypeBlogPost: {
		Type:          ContentTypeBlogPost,
		DefaultTone:   ToneEngaging,
		Words:         WordRange{Min: 50, Max: 5000, Default: 900, Required: true},
		DefaultParams: GenerationParams{Temperature: 0.7, MaxTokens: 2000, TopP: 0.9},
		Structure: Structure{
			Directive:       "Clear title (H1), introduction paragraph, 3-4 main sections with descriptive headers (H2), and a conclusion",
			RequireTitle:    true,
			MinSections:     2,
			ClosingKeywords: []string{"conclusion", "summary", "final"},
		},
	},
	ContentTypeEmail: {
		Type:          ContentTypeEmail,
		DefaultTone:   ToneProfessional,
		Words:         WordRange{Min: 50, Max: 1000, Default: 275},
		DefaultParams: GenerationParams{Temperature: 0.6, MaxTokens: 1500, TopP: 0.85},
		Structure: Structure{
			Directive:      "Clear subject line, professional greeting, well-organized body paragraphs, and professional closing",
			RequireSubject: true,
		},
	},
	ContentTypeSocialMedia: {
		Type:          ContentTypeSocialMedia,
		DefaultTone:   ToneEngaging,
		Words:         WordRange{Min: 50, Max: 1000, Default: 100},
		DefaultParams: GenerationParams{Temperature: 0.8, MaxTokens: 500, TopP: 0.95},
		Structure: Structure{
			Directive: "Platform-optimized post body followed by a single hashtag line",
			Hashtags:  true,
		},
	},
	ContentTypeLinkedIn: {
		Type:          ContentTypeLinkedIn,
		DefaultTone:   ToneProfessional,
		Words:         WordRange{Min: 50, Max: 3000, Default: 300},
		DefaultParams: GenerationParams{Temperature: 0.65, MaxTokens: 800, TopP: 0.9},
		Structure: Structure{
			Directive: "Hook, value-driven content, clear takeaway, call to action",
			Hashtags:  true,
		},
	},
	ContentTypeJobApplication: {
		Type:          ContentTypeJobApplication,
		DefaultTone:   ToneProfessional,
		Words:         WordRange{Min: 50, Max: 1500, Default: 400},
		DefaultParams: GenerationParams{Temperature: 0.55, MaxTokens: 1200, TopP: 0.85},
		Structure: Structure{
			Directive: "Professional greeting, introduction paragraph, 2-3 body paragraphs highlighting relevant qualifications, closing paragraph, professional sign-off",
		},
	},
}

// contentTypeOrder 稳定的展示顺序
var contentTypeOrder = []ContentType{
	ContentTypeBlogPost,
	ContentTypeEmail,
	ContentTypeSocialMedia,
	ContentTypeLinkedIn,
	ContentTypeJobApplication,
}

// LookupSpec 查找内容类型注册信息
func LookupSpec(t ContentType) (ContentTypeSpec, bool) {
	spec, ok := registry[t]
	return spec, ok
}

// ContentTypes 返回全部已注册的内容类型
func ContentTypes() []ContentType {
	out := make([]ContentType, len(contentTypeOrder))
	copy(out, contentTypeOrder)
	return out
}
