package provider

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleConfig configures the secondary (Cloud Translation library)
// provider.
type GoogleConfig struct {
	CredentialsFile string
}

// Google wraps the Cloud Translation client. It is the fallback
// provider: a metered API we only hit when the primary is down. The
// library manages its own transport, so there is no explicit timeout
// here beyond what the caller's context carries.
type Google struct {
	client *translate.Client
}

func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Google{client: client}, nil
}

func (p *Google) Name() string { return "google" }

func (p *Google) Translate(ctx context.Context, text, targetLang string) (Result, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return Result{}, fmt.Errorf("google: invalid target language %q: %w", targetLang, err)
	}

	// Source nil = let the API detect it.
	translations, err := p.client.Translate(ctx, []string{text}, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("google: %w", err)
	}
	if len(translations) == 0 {
		return Result{}, fmt.Errorf("google: no translation returned")
	}

	tr := translations[0]
	detected := ""
	if !tr.Source.IsRoot() {
		detected = tr.Source.String()
	}
	return Result{Text: tr.Text, DetectedLang: detected}, nil
}

func (p *Google) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
