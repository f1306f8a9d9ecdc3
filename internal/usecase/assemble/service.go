// Package assemble groups summarized articles into a subscriber's digest and turns
// the digest into a transport-ready email payload.
package assemble

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"daily-digest/internal/domain/entity"
)

// DateLayout formats the digest date in the email body ("19 Oct 2026").
const DateLayout = "02 Jan 2006"

// TokenSigner issues the unsubscribe token embedded in every digest.
type TokenSigner interface {
	Sign(email string) (string, error)
}

// Renderer turns the digest view into an HTML document.
type Renderer interface {
	Render(data RenderData) (string, error)
}

// RenderData is the view handed to the Renderer.
type RenderData struct {
	AppName        string
	Date           string
	Sections       []entity.Section
	UnsubscribeURL string
}

// Payload is a rendered digest ready for the transport.
type Payload struct {
	Subject string
	HTML    string
}

// Config controls digest sizing and the links placed in the email.
type Config struct {
	AppName string
	// BaseURL is the public address of the unsubscribe endpoint, without a trailing slash.
	BaseURL string
	// TotalMaxArticles is the ceiling across all sections. Default: 12
	TotalMaxArticles int
	// PerTopicCap is the section length applied while trimming. Default: 2
	PerTopicCap int
}

// DefaultConfig returns the sizing defaults.
func DefaultConfig() Config {
	return Config{
		AppName:          "AI News Digest",
		BaseURL:          "http://localhost:8501",
		TotalMaxArticles: 12,
		PerTopicCap:      2,
	}
}

// Service builds and renders digests.
type Service struct {
	cfg      Config
	signer   TokenSigner
	renderer Renderer
}

// NewService creates an assembler. signer and renderer are required.
func NewService(cfg Config, signer TokenSigner, renderer Renderer) *Service {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{cfg: cfg, signer: signer, renderer: renderer}
}

// Subject returns the subject line shared by every digest.
func (s *Service) Subject() string {
	return fmt.Sprintf("🗞️ %s — Daily News Digest", s.cfg.AppName)
}

// Build buckets articles into the subscriber's topics. Articles on other topics are
// dropped, sections follow the subscriber's topic order and empty topics get no section.
//
// When the digest holds more than TotalMaxArticles, sections are cut to PerTopicCap in
// topic order until the running count of kept articles reaches the ceiling. Sections
// after that point are left as they are.
func (s *Service) Build(sub *entity.Subscriber, articles []entity.SummarizedArticle, date time.Time) entity.Digest {
	buckets := make(map[string][]entity.SummarizedArticle, len(sub.Topics))
	for _, a := range articles {
		if !sub.HasTopic(a.Topic) {
			continue
		}
		buckets[a.Topic] = append(buckets[a.Topic], a)
	}

	digest := entity.Digest{Date: date, Email: sub.Email}
	for _, topic := range sub.Topics {
		if items := buckets[topic]; len(items) > 0 {
			digest.Sections = append(digest.Sections, entity.Section{Topic: topic, Articles: items})
			delete(buckets, topic) // duplicate topics in the preference list get one section
		}
	}

	if s.cfg.TotalMaxArticles > 0 && digest.Total() > s.cfg.TotalMaxArticles {
		trimmed := 0
		for i := range digest.Sections {
			if len(digest.Sections[i].Articles) > s.cfg.PerTopicCap {
				digest.Sections[i].Articles = digest.Sections[i].Articles[:s.cfg.PerTopicCap]
			}
			trimmed += len(digest.Sections[i].Articles)
			if trimmed >= s.cfg.TotalMaxArticles {
				break
			}
		}
	}

	return digest
}

// Render signs an unsubscribe token for the digest's recipient and renders the email.
func (s *Service) Render(ctx context.Context, digest *entity.Digest) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}

	token, err := s.signer.Sign(digest.Email)
	if err != nil {
		return Payload{}, fmt.Errorf("sign unsubscribe token: %w", err)
	}

	html, err := s.renderer.Render(RenderData{
		AppName:        s.cfg.AppName,
		Date:           digest.Date.Format(DateLayout),
		Sections:       digest.Sections,
		UnsubscribeURL: s.unsubscribeURL(token),
	})
	if err != nil {
		return Payload{}, fmt.Errorf("render digest: %w", err)
	}

	return Payload{Subject: s.Subject(), HTML: html}, nil
}

func (s *Service) unsubscribeURL(token string) string {
	return s.cfg.BaseURL + "/unsubscribe?token=" + url.QueryEscape(token)
}
