package model

import "time"

type TemplateItem struct {
	Name     string  `json:"name" validate:"notblank,max=200"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Unit     string  `json:"unit" validate:"max=32"`
	Category string  `json:"category" validate:"max=64"`
}

type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Color       string         `json:"color"`
	Items       []TemplateItem `json:"items"`
	Predefined  bool           `json:"predefined"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type NewTemplate struct {
	Name        string         `json:"name" validate:"notblank,max=100"`
	Description string         `json:"description" validate:"max=500"`
	Icon        string         `json:"icon" validate:"max=16"`
	Color       string         `json:"color" validate:"omitempty,hexcolor"`
	Items       []TemplateItem `json:"items" validate:"dive"`
}

type TemplatePatch struct {
	Name        *string         `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string         `json:"description" validate:"omitempty,max=500"`
	Icon        *string         `json:"icon" validate:"omitempty,max=16"`
	Color       *string         `json:"color" validate:"omitempty,hexcolor"`
	Items       *[]TemplateItem `json:"items" validate:"omitempty,dive"`
}

func (p TemplatePatch) Apply(t *Template) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Icon != nil {
		t.Icon = *p.Icon
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Items != nil {
		t.Items = append([]TemplateItem(nil), (*p.Items)...)
	}
}
