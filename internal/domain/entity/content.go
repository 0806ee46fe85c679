// Package entity 定义内容生成领域实体
package entity

import "slices"

// ContentType 内容类型
type ContentType string

const (
	ContentTypeBlogPost       ContentType = "blog_post"
	ContentTypeEmail          ContentType = "email"
	ContentTypeSocialMedia    ContentType = "social_media"
	ContentTypeLinkedIn       ContentType = "linkedin"
	ContentTypeJobApplication ContentType = "job_application"
)

// Tone 语气
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFriendly     Tone = "friendly"
	ToneFormal       Tone = "formal"
	ToneEngaging     Tone = "engaging"
	TonePersuasive   Tone = "persuasive"
)

// Tones 全部合法语气
var Tones = []Tone{ToneProfessional, ToneCasual, ToneFriendly, ToneFormal, ToneEngaging, TonePersuasive}

// Valid 判断语气是否在枚举内
func (t Tone) Valid() bool {
	for _, v := range Tones {
		if v == t {
			return true
		}
	}
	return false
}

// GenerateRequest 原始生成请求（HTTP 边界上的形态）
type GenerateRequest struct {
	ContentType      ContentType            `json:"content_type"`
	Context          map[string]any         `json:"context"`
	Specifications   map[string]any         `json:"specifications"`
	GenerationParams *GenerationParamsInput `json:"generation_params,omitempty"`
}

// GenerationParamsInput 调用方可选提供的生成参数，缺省字段取内容类型默认值
type GenerationParamsInput struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	UseFewShot  *bool    `json:"use_few_shot,omitempty"`
}

// GenerationParams 归一化后的生成参数
type GenerationParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	UseFewShot  bool    `json:"use_few_shot"`
}

// NormalizedRequest 校验通过、默认值已补齐的请求
//
// 字段顺序即指纹序列化顺序，调整时注意缓存指纹会随之变化。
type NormalizedRequest struct {
	ContentType ContentType      `json:"content_type"`
	WordTarget  int              `json:"word_target"`
	Tone        Tone             `json:"tone"`
	Brief       Brief            `json:"brief"`
	Params      GenerationParams `json:"generation_params"`
}

// Spec 返回该请求内容类型的注册信息
func (r *NormalizedRequest) Spec() ContentTypeSpec {
	spec, _ := LookupSpec(r.ContentType)
	return spec
}

// Brief 按内容类型区分的强类型需求描述
type Brief interface {
	Kind() ContentType
}

// BlogPostBrief 博客文章
type BlogPostBrief struct {
	Topic      string `json:"topic"`
	Audience   string `json:"audience"`
	SEOEnabled bool   `json:"seo_enabled"`
	Expertise  string `json:"expertise"`
}

func (BlogPostBrief) Kind() ContentType { return ContentTypeBlogPost }

// EmailBrief 邮件
type EmailBrief struct {
	Purpose          string `json:"purpose"`
	RecipientContext string `json:"recipient_context"`
	KeyPoints        string `json:"key_points"`
	UrgencyLevel     string `json:"urgency_level"`
	CTA              string `json:"cta,omitempty"`
}

func (EmailBrief) Kind() ContentType { return ContentTypeEmail }

// SocialMediaBrief 社交媒体帖子
type SocialMediaBrief struct {
	Platform     string `json:"platform"`
	Topic        string `json:"topic"`
	Goal         string `json:"goal,omitempty"`
	HashtagCount int    `json:"hashtag_count"`
}

func (SocialMediaBrief) Kind() ContentType { return ContentTypeSocialMedia }

// LinkedInBrief 领英帖子
type LinkedInBrief struct {
	Topic           string `json:"topic"`
	TargetAudience  string `json:"target_audience"`
	EngagementGoal  string `json:"engagement_goal,omitempty"`
	IncludeHashtags bool   `json:"include_hashtags"`
}

func (LinkedInBrief) Kind() ContentType { return ContentTypeLinkedIn }

// JobApplicationBrief 求职材料
type JobApplicationBrief struct {
	PositionTitle     string `json:"position_title"`
	CompanyName       string `json:"company_name"`
	KeyQualifications string `json:"key_qualifications"`
	ExperienceLevel   string `json:"experience_level"`
	ApplicationType   string `json:"application_type"`
}

func (JobApplicationBrief) Kind() ContentType { return ContentTypeJobApplication }

// GenerateResponse 生成结果
type GenerateResponse struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Clone 深拷贝，切片与警告偏差不再与原值共享底层存储
func (r *GenerateResponse) Clone() *GenerateResponse {
	cp := *r
	m := &cp.Metadata
	m.Sections = slices.Clone(m.Sections)
	m.SEOKeywords = slices.Clone(m.SEOKeywords)
	m.Hashtags = slices.Clone(m.Hashtags)
	m.Warnings = slices.Clone(m.Warnings)
	for i := range m.Warnings {
		if d := m.Warnings[i].Deviation; d != nil {
			v := *d
			m.Warnings[i].Deviation = &v
		}
	}
	return &cp
}

// Metadata 生成结果元数据
type Metadata struct {
	WordCount         int       `json:"word_count"`
	TargetWordCount   int       `json:"target_word_count"`
	WordCountValid    bool      `json:"word_count_valid"`
	Title             string    `json:"title,omitempty"`
	Subject           string    `json:"subject,omitempty"`
	Sections          []string  `json:"sections"`
	SectionsComplete  bool      `json:"sections_complete"`
	TokensUsed        int       `json:"tokens_used"`
	Provider          string    `json:"provider,omitempty"`
	Model             string    `json:"model,omitempty"`
	EstimatedReadTime string    `json:"estimated_read_time"`
	SEOKeywords       []string  `json:"seo_keywords,omitempty"`
	Hashtags          []string  `json:"hashtags,omitempty"`
	Cached            bool      `json:"cached"`
	Warnings          []Warning `json:"warnings,omitempty"`
}

// 后处理警告码
const (
	WarningWordCountOutOfRange = "word_count_out_of_range"
	// WarningWordCountDeviation 偏离目标但仍在容差内
	WarningWordCountDeviation = "word_count_deviation"
	WarningMissingSections    = "missing_sections"
	WarningArtifactsRemoved   = "ai_artifacts_removed"
)

// Warning 非致命的后处理警告，只记录不报错
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Deviation 实际字数相对目标的偏差比例（0.09 表示多 9%）
	Deviation *float64 `json:"deviation,omitempty"`
}
