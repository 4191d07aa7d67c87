package generator

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type cannedPost struct {
	Title        string   `yaml:"title"`
	Hashtags     []string `yaml:"hashtags"`
	Content      string   `yaml:"content"`
	Storytelling string   `yaml:"storytelling"`
	General      string   `yaml:"general"`
}

type catalogueFile struct {
	Tones    map[string]string `yaml:"tones"`
	Lengths  map[string]string `yaml:"lengths"`
	System   string            `yaml:"system"`
	User     string            `yaml:"user"`
	Suffix   string            `yaml:"suffix"`
	Demo     cannedPost        `yaml:"demo"`
	Fallback cannedPost        `yaml:"fallback"`
}

// catalogue holds the parsed prompt templates.
type catalogue struct {
	tones   map[string]string
	lengths map[string]string
	suffix  string

	demoHashtags     []string
	fallbackHashtags []string

	tmpl *template.Template
}

// promptData is what every template is rendered with.
type promptData struct {
	Request
	ToneGuide   string
	LengthGuide string
}

func loadCatalogue(raw []byte) (*catalogue, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prompt catalogue: %w", err)
	}
	if len(f.Tones) == 0 || len(f.Lengths) == 0 {
		return nil, fmt.Errorf("prompt catalogue has no tones or lengths")
	}

	root := template.New("prompts").Option("missingkey=error")
	parts := map[string]string{
		"system":         f.System,
		"user":           f.User,
		"demo.title":     f.Demo.Title,
		"demo.story":     f.Demo.Storytelling,
		"demo.general":   f.Demo.General,
		"fallback.title": f.Fallback.Title,
		"fallback.body":  f.Fallback.Content,
	}
	for name, text := range parts {
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}

	return &catalogue{
		tones:            f.Tones,
		lengths:          f.Lengths,
		suffix:           strings.TrimSpace(f.Suffix),
		demoHashtags:     f.Demo.Hashtags,
		fallbackHashtags: f.Fallback.Hashtags,
		tmpl:             root,
	}, nil
}

func (c *catalogue) render(name string, req Request) (string, error) {
	var b strings.Builder
	data := promptData{
		Request:     req,
		ToneGuide:   c.tones[req.Tone],
		LengthGuide: c.lengths[req.Length],
	}
	if err := c.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// prompt joins the system and user prompts into one completion request.
func (c *catalogue) prompt(req Request) (string, error) {
	system, err := c.render("system", req)
	if err != nil {
		return "", err
	}
	user, err := c.render("user", req)
	if err != nil {
		return "", err
	}
	return system + "\n\nUser Request: " + user + "\n\n" + c.suffix, nil
}
