package validation

import (
	"content-ai-api/internal/domain/entity"
)

// 各内容类型 context / specifications 的字段约束

type blogPostContext struct {
	Topic    string `mapstructure:"topic" validate:"required,min=3,max=200"`
	Audience string `mapstructure:"audience" validate:"required,min=3,max=100"`
	Tone     string `mapstructure:"tone" validate:"required"`
}

type blogPostSpec struct {
	SEOEnabled bool   `mapstructure:"seo_enabled"`
	Expertise  string `mapstructure:"expertise" validate:"omitempty,oneof=beginner intermediate advanced"`
}

type emailContext struct {
	Purpose          string `mapstructure:"purpose" validate:"required,min=5,max=200"`
	RecipientContext string `mapstructure:"recipient_context" validate:"required,min=5,max=500"`
	KeyPoints        string `mapstructure:"key_points" validate:"required,min=10,max=1000"`
	Tone             string `mapstructure:"tone" validate:"required"`
}

type emailSpec struct {
	UrgencyLevel string `mapstructure:"urgency_level" validate:"omitempty,oneof=low medium high"`
	CTA          string `mapstructure:"cta" validate:"max=100"`
}

type socialMediaContext struct {
	Platform string `mapstructure:"platform" validate:"required,min=2,max=50"`
	Topic    string `mapstructure:"topic" validate:"required,min=3,max=500"`
	Tone     string `mapstructure:"tone" validate:"required"`
	Goal     string `mapstructure:"goal" validate:"max=200"`
}

type socialMediaSpec struct {
	HashtagCount *int `mapstructure:"hashtag_count" validate:"omitempty,min=0,max=20"`
}

type linkedInContext struct {
	Topic          string `mapstructure:"topic" validate:"required,min=3,max=500"`
	TargetAudience string `mapstructure:"target_audience" validate:"required,min=3,max=200"`
	EngagementGoal string `mapstructure:"engagement_goal" validate:"max=200"`
	Tone           string `mapstructure:"tone" validate:"required"`
}

type linkedInSpec struct {
	IncludeHashtags *bool `mapstructure:"include_hashtags"`
}

type jobApplicationContext struct {
	PositionTitle     string `mapstructure:"position_title" validate:"required,min=3,max=200"`
	CompanyName       string `mapstructure:"company_name" validate:"required,min=2,max=200"`
	KeyQualifications string `mapstructure:"key_qualifications" validate:"required,min=10,max=1000"`
	ExperienceLevel   string `mapstructure:"experience_level" validate:"required,min=3,max=50"`
}

type jobApplicationSpec struct {
	ApplicationType string `mapstructure:"application_type" validate:"max=50"`
}

// buildBrief 解码并校验类型相关字段，返回强类型 Brief 与原始语气（无语气字段的类型返回 nil）
func (v *Validator) buildBrief(ct entity.ContentType, ctx, spec map[string]any) (entity.Brief, *string, error) {
	switch ct {
	case entity.ContentTypeBlogPost:
		var c blogPostContext
		var s blogPostSpec
		if err := v.bindPair(ctx, &c, spec, &s); err != nil {
			return nil, nil, err
		}
		return entity.BlogPostBrief{
			Topic:      c.Topic,
			Audience:   c.Audience,
			SEOEnabled: s.SEOEnabled,
			Expertise:  orDefault(s.Expertise, "beginner"),
		}, &c.Tone, nil

	case entity.ContentTypeEmail:
		var c emailContext
		var s emailSpec
		if err := v.bindPair(ctx, &c, spec, &s); err != nil {
			return nil, nil, err
		}
		return entity.EmailBrief{
			Purpose:          c.Purpose,
			RecipientContext: c.RecipientContext,
			KeyPoints:        c.KeyPoints,
			UrgencyLevel:     orDefault(s.UrgencyLevel, "medium"),
			CTA:              s.CTA,
		}, &c.Tone, nil

	case entity.ContentTypeSocialMedia:
		var c socialMediaContext
		var s socialMediaSpec
		if err := v.bindPair(ctx, &c, spec, &s); err != nil {
			return nil, nil, err
		}
		hashtags := 3
		if s.HashtagCount != nil {
			hashtags = *s.HashtagCount
		}
		return entity.SocialMediaBrief{
			Platform:     c.Platform,
			Topic:        c.Topic,
			Goal:         c.Goal,
			HashtagCount: hashtags,
		}, &c.Tone, nil

	case entity.ContentTypeLinkedIn:
		var c linkedInContext
		var s linkedInSpec
		if err := v.bindPair(ctx, &c, spec, &s); err != nil {
			return nil, nil, err
		}
		include := true
		if s.IncludeHashtags != nil {
			include = *s.IncludeHashtags
		}
		return entity.LinkedInBrief{
			Topic:           c.Topic,
			TargetAudience:  c.TargetAudience,
			EngagementGoal:  c.EngagementGoal,
			IncludeHashtags: include,
		}, &c.Tone, nil

	case entity.ContentTypeJobApplication:
		var c jobApplicationContext
		var s jobApplicationSpec
		if err := v.bindPair(ctx, &c, spec, &s); err != nil {
			return nil, nil, err
		}
		return entity.JobApplicationBrief{
			PositionTitle:     c.PositionTitle,
			CompanyName:       c.CompanyName,
			KeyQualifications: c.KeyQualifications,
			ExperienceLevel:   c.ExperienceLevel,
			ApplicationType:   orDefault(s.ApplicationType, "cover_letter"),
		}, nil, nil
	}
	return nil, nil, &UnsupportedContentTypeError{ContentType: ct}
}

func (v *Validator) bindPair(ctx map[string]any, c any, spec map[string]any, s any) error {
	if err := v.bind("context", ctx, c); err != nil {
		return err
	}
	return v.bind("specifications", spec, s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
