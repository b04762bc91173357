package services

import "zines/internal/models"

// Block is one positioned element of a page template. Positions and sizes
// are percentages of the page.
type Block struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Style   string `json:"style,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// Template is a page layout a creator can start a page from.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Preview string  `json:"preview"`
	Blocks  []Block `json:"blocks"`
}

// Content renders the template as page content.
func (t Template) Content() models.Document {
	blocks := t.Blocks
	if blocks == nil {
		blocks = []Block{}
	}
	doc, err := encodeDocument(struct {
		Blocks []Block `json:"blocks"`
	}{blocks})
	if err != nil {
		return models.EmptyPageContent()
	}
	return doc
}

var templateCatalogue = []Template{
	{
		ID:      models.TemplateBlank,
		Name:    "Blank",
		Preview: "/static/images/template-blank.png",
		Blocks:  []Block{},
	},
	{
		ID:      "cover",
		Name:    "Cover Page",
		Preview: "/static/images/template-cover.png",
		Blocks: []Block{
			{Type: "text", Content: "Your Title", Style: "title", X: 50, Y: 40},
			{Type: "text", Content: "Subtitle", Style: "subtitle", X: 50, Y: 55},
		},
	},
	{
		ID:      "photo-text",
		Name:    "Photo + Text",
		Preview: "/static/images/template-photo-text.png",
		Blocks: []Block{
			{Type: "image", X: 10, Y: 10, Width: 80, Height: 40},
			{Type: "text", Content: "Your text here", X: 10, Y: 55, Width: 80},
		},
	},
	{
		ID:      "grid",
		Name:    "Grid Layout",
		Preview: "/static/images/template-grid.png",
		Blocks: []Block{
			{Type: "image", X: 10, Y: 10, Width: 35, Height: 35},
			{Type: "image", X: 55, Y: 10, Width: 35, Height: 35},
			{Type: "image", X: 10, Y: 55, Width: 35, Height: 35},
			{Type: "image", X: 55, Y: 55, Width: 35, Height: 35},
		},
	},
	{
		ID:      "article",
		Name:    "Article",
		Preview: "/static/images/template-article.png",
		Blocks: []Block{
			{Type: "text", Content: "Article Title", Style: "heading", X: 10, Y: 10},
			{Type: "text", Content: "Your article text...", X: 10, Y: 20, Width: 80, Height: 70},
		},
	},
}

// Templates returns the page template catalogue.
func Templates() []Template {
	out := make([]Template, len(templateCatalogue))
	copy(out, templateCatalogue)
	return out
}

func findTemplate(id string) (Template, bool) {
	if id == "" {
		id = models.TemplateBlank
	}
	for _, t := range templateCatalogue {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
