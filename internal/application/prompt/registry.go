package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptBlogPost          PromptID = "blog_post"
	PromptEmail             PromptID = "email"
	PromptSocialMedia       PromptID = "social_media"
	PromptLinkedIn          PromptID = "linkedin"
	PromptCoverLetter       PromptID = "job_application_cover_letter"
	PromptApplicationLetter PromptID = "job_application_generic"
)

type Registry struct {
	mu       sync.RWMutex
	cache    map[PromptID]einoprompt.ChatTemplate
	fewShots map[PromptID]string
}

func NewRegistry() *Registry {
	return &Registry{
		cache:    make(map[PromptID]einoprompt.ChatTemplate),
		fewShots: make(map[PromptID]string),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// FewShot 返回示例块；没有示例的模板返回空串
func (r *Registry) FewShot(id PromptID) (string, error) {
	r.mu.RLock()
	if block, ok := r.fewShots[id]; ok {
		r.mu.RUnlock()
		return block, nil
	}
	r.mu.RUnlock()

	var block string
	switch id {
	case PromptBlogPost, PromptEmail:
		b, err := readEmbeddedText("templates/" + string(id) + ".fewshot.txt")
		if err != nil {
			return "", err
		}
		block = b
	}

	r.mu.Lock()
	r.fewShots[id] = block
	r.mu.Unlock()
	return block, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptBlogPost:
		return "templates/blog_post.system.txt", "templates/blog_post.user.txt", nil
	case PromptEmail:
		return "templates/email.system.txt", "templates/email.user.txt", nil
	case PromptSocialMedia:
		return "templates/social_media.system.txt", "templates/social_media.user.txt", nil
	case PromptLinkedIn:
		return "templates/linkedin.system.txt", "templates/linkedin.user.txt", nil
	case PromptCoverLetter:
		return "templates/job_application.system.txt", "templates/job_application_cover_letter.user.txt", nil
	case PromptApplicationLetter:
		return "templates/job_application.system.txt", "templates/job_application_generic.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
