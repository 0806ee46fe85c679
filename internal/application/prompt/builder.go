// Package prompt 根据归一化请求渲染发送给模型的消息
package prompt

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"content-ai-api/internal/domain/entity"
)

const (
	openTag  = "<user_input>"
	closeTag = "</user_input>"
)

// delimiterPattern 用户输入里伪造的分隔标签
var delimiterPattern = regexp.MustCompile(`(?i)<\s*/?\s*user_input\s*>`)

// Wrap 用分隔标签包裹用户输入，并去掉其中伪造的标签，防止提前闭合
func Wrap(s string) string {
	return openTag + delimiterPattern.ReplaceAllString(strings.TrimSpace(s), "") + closeTag
}

// Builder 提示词构建器
type Builder struct {
	registry *Registry
}

// NewBuilder 创建提示词构建器
func NewBuilder(registry *Registry) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Builder{registry: registry}
}

// Build 渲染 system + user 两条消息
func (b *Builder) Build(ctx context.Context, req *entity.NormalizedRequest) ([]*schema.Message, error) {
	if req == nil || req.Brief == nil {
		return nil, fmt.Errorf("prompt: empty request")
	}

	id, vars, err := b.variables(req)
	if err != nil {
		return nil, err
	}
	if req.Params.UseFewShot {
		block, err := b.registry.FewShot(id)
		if err != nil {
			return nil, fmt.Errorf("prompt: load few-shot block: %w", err)
		}
		if block != "" {
			vars["few_shot"] = "\n\n" + block
		}
	}

	tpl, err := b.registry.ChatTemplate(id)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("prompt: format %s: %w", id, err)
	}
	return msgs, nil
}

func (b *Builder) variables(req *entity.NormalizedRequest) (PromptID, map[string]any, error) {
	spec := req.Spec()
	vars := map[string]any{
		"tone":        string(req.Tone),
		"word_target": strconv.Itoa(req.WordTarget),
		"structure":   spec.Structure.Directive,
		"few_shot":    "",
	}

	switch brief := req.Brief.(type) {
	case entity.BlogPostBrief:
		vars["topic"] = Wrap(brief.Topic)
		vars["audience"] = Wrap(brief.Audience)
		vars["expertise"] = brief.Expertise
		vars["tone_directive"] = toneDirective(entity.ContentTypeBlogPost, req.Tone)
		vars["seo"] = "Disabled"
		if brief.SEOEnabled {
			vars["seo"] = "Enabled - include relevant keywords in headers and naturally in content"
		}
		return PromptBlogPost, vars, nil

	case entity.EmailBrief:
		vars["purpose"] = Wrap(brief.Purpose)
		vars["recipient"] = Wrap(brief.RecipientContext)
		vars["key_points"] = Wrap(brief.KeyPoints)
		vars["tone_directive"] = toneDirective(entity.ContentTypeEmail, req.Tone)
		vars["urgency"] = urgencyText(brief.UrgencyLevel)
		vars["cta"] = "Appropriate closing based on purpose"
		if brief.CTA != "" {
			vars["cta"] = Wrap(brief.CTA)
		}
		return PromptEmail, vars, nil

	case entity.SocialMediaBrief:
		vars["platform"] = Wrap(brief.Platform)
		vars["topic"] = Wrap(brief.Topic)
		vars["goal"] = "Engage audience"
		if brief.Goal != "" {
			vars["goal"] = Wrap(brief.Goal)
		}
		vars["tone_directive"] = toneDirective(entity.ContentTypeSocialMedia, req.Tone)
		vars["hashtag_count"] = strconv.Itoa(brief.HashtagCount)
		vars["guidelines"] = platformGuidelines(brief.Platform)
		return PromptSocialMedia, vars, nil

	case entity.LinkedInBrief:
		vars["topic"] = Wrap(brief.Topic)
		vars["audience"] = Wrap(brief.TargetAudience)
		vars["engagement_goal"] = "Share insights and engage network"
		if brief.EngagementGoal != "" {
			vars["engagement_goal"] = Wrap(brief.EngagementGoal)
		}
		vars["tone_directive"] = toneDirective(entity.ContentTypeLinkedIn, req.Tone)
		vars["hashtags"] = "No"
		vars["hashtag_directive"] = "No hashtags"
		if brief.IncludeHashtags {
			vars["hashtags"] = "Yes - 3-5 relevant professional hashtags"
			vars["hashtag_directive"] = "Include 3-5 relevant professional hashtags at the end"
		}
		return PromptLinkedIn, vars, nil

	case entity.JobApplicationBrief:
		vars["position"] = Wrap(brief.PositionTitle)
		vars["company"] = Wrap(brief.CompanyName)
		vars["qualifications"] = Wrap(brief.KeyQualifications)
		vars["experience"] = Wrap(brief.ExperienceLevel)
		if strings.EqualFold(brief.ApplicationType, "cover_letter") {
			return PromptCoverLetter, vars, nil
		}
		vars["application_type"] = Wrap(strings.ReplaceAll(brief.ApplicationType, "_", " "))
		return PromptApplicationLetter, vars, nil

	default:
		return "", nil, fmt.Errorf("prompt: no template for %T", req.Brief)
	}
}

// 各内容类型的语气写作要求
var toneDirectives = map[entity.ContentType]map[entity.Tone]string{
	entity.ContentTypeBlogPost: {
		entity.ToneProfessional: "Professional and authoritative, suitable for business or academic contexts",
		entity.ToneCasual:       "Conversational and relaxed, friendly tone",
		entity.ToneFriendly:     "Warm and approachable, inviting tone",
		entity.ToneFormal:       "Polite and reserved, using formal language",
		entity.ToneEngaging:     "Captivating and interesting, designed to hold reader attention",
		entity.TonePersuasive:   "Convincing and compelling, designed to influence the reader",
	},
	entity.ContentTypeEmail: {
		entity.ToneProfessional: "Professional and courteous, suitable for business communication",
		entity.ToneCasual:       "Relaxed and friendly, suitable for informal workplace communication",
		entity.ToneFriendly:     "Warm and approachable, maintaining professionalism",
		entity.ToneFormal:       "Polite and reserved, using formal business language",
		entity.ToneEngaging:     "Captivating and interesting, designed to maintain reader interest",
		entity.TonePersuasive:   "Convincing and compelling, designed to achieve the desired outcome",
	},
	entity.ContentTypeSocialMedia: {
		entity.ToneProfessional: "Professional and polished, suitable for business platforms",
		entity.ToneCasual:       "Conversational and relaxed, friendly tone",
		entity.ToneFriendly:     "Warm and approachable, inviting tone",
		entity.ToneFormal:       "Polite and reserved, using formal language",
		entity.ToneEngaging:     "Captivating and interesting, designed to generate engagement",
		entity.TonePersuasive:   "Convincing and compelling, designed to drive action",
	},
	entity.ContentTypeLinkedIn: {
		entity.ToneProfessional: "Professional and authoritative, suitable for business networking",
		entity.ToneCasual:       "Relaxed but still professional, approachable tone",
		entity.ToneFriendly:     "Warm and approachable, maintaining professionalism",
		entity.ToneFormal:       "Polite and reserved, using formal business language",
		entity.ToneEngaging:     "Captivating and interesting, designed to generate discussion",
		entity.TonePersuasive:   "Convincing and compelling, designed to influence professional audience",
	},
}

var defaultToneDirectives = map[entity.ContentType]string{
	entity.ContentTypeBlogPost:    "Engaging and accessible",
	entity.ContentTypeEmail:       "Professional and courteous",
	entity.ContentTypeSocialMedia: "Engaging and authentic",
	entity.ContentTypeLinkedIn:    "Professional and engaging",
}

func toneDirective(ct entity.ContentType, tone entity.Tone) string {
	if d, ok := toneDirectives[ct][tone]; ok {
		return d
	}
	return defaultToneDirectives[ct]
}

func urgencyText(level string) string {
	switch level {
	case "low":
		return "Standard priority - no immediate action required"
	case "high":
		return "High priority - requires prompt attention or response"
	default:
		return "Normal priority - action needed in a reasonable timeframe"
	}
}

// platformGuidelines 按平台给出篇幅与话题标签建议，未知平台使用通用建议
func platformGuidelines(platform string) string {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "twitter", "x":
		return "Maximum 280 characters, concise and punchy, use 1-2 hashtags"
	case "instagram":
		return "Engaging visual language, use 5-10 relevant hashtags, can be longer"
	case "linkedin":
		return "Professional tone, 3-5 hashtags, longer form content encouraged"
	case "facebook":
		return "Conversational, engaging, 2-5 hashtags, varied length"
	default:
		return "Concise and engaging, use 3-5 hashtags"
	}
}

// Render 将消息渲染为可读文本，供命令行预览
func Render(msgs []*schema.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s]\n%s", m.Role, m.Content)
	}
	return sb.String()
}
