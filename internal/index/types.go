// Package index implements the document index gateway: one full-text
// index per entity type, with upsert, delete, and per-user scoped search.
package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkwell-ai/docgate/internal/errors"
)

// EntityType identifies a document type handled by the gateway.
// Each type maps 1:1 to a named index in the schema registry.
type EntityType string

const (
	TypeResource            EntityType = "resource"
	TypeNote                EntityType = "note"
	TypeCollection          EntityType = "collection"
	TypeConversationMessage EntityType = "conversationMessage"
	TypeSkill               EntityType = "skill"
)

// EntityTypes lists all registered entity types in registry order.
func EntityTypes() []EntityType {
	return []EntityType{
		TypeResource,
		TypeNote,
		TypeCollection,
		TypeConversationMessage,
		TypeSkill,
	}
}

// ParseEntityType converts a string (e.g. from a URL segment) to an
// EntityType. Unknown types return a validation error.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	for _, known := range EntityTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", errors.New(errors.ErrCodeUnknownEntityType,
		fmt.Sprintf("unknown entity type %q", s), nil)
}

// MessageKind is the enumerated kind of a conversation message.
type MessageKind string

const (
	MessageKindHuman  MessageKind = "human"
	MessageKindAI     MessageKind = "ai"
	MessageKindSystem MessageKind = "system"
)

// User is the caller identity used for read-time visibility filtering.
type User struct {
	UID string `json:"uid"`
}

// SearchRequest is the per-type search input.
// Entities, when present, restricts results to that explicit id set.
type SearchRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	Entities []string `json:"entities,omitempty"`
}

// Hit is a single scored search result.
type Hit struct {
	ID        string              `json:"id"`
	Score     float64             `json:"score"`
	Source    map[string]any      `json:"source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// Document is implemented by every indexable document shape.
// Fields returns the stored body keyed by index field name; zero-valued
// optional fields are omitted so the stored shape stays sparse.
type Document interface {
	DocID() string
	OwnerUID() string
	Fields() map[string]any
}

// ResourceDocument is an indexed resource (imported weblink, file, ...).
type ResourceDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	UID       string    `json:"uid"`
}

func (d ResourceDocument) DocID() string    { return d.ID }
func (d ResourceDocument) OwnerUID() string { return d.UID }

func (d ResourceDocument) Fields() map[string]any {
	f := baseFields(d.ID, d.UID, d.CreatedAt, d.UpdatedAt)
	putText(f, "title", d.Title)
	putText(f, "content", d.Content)
	putText(f, "url", d.URL)
	return f
}

// NoteDocument is an indexed note.
type NoteDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	UID       string    `json:"uid"`
}

func (d NoteDocument) DocID() string    { return d.ID }
func (d NoteDocument) OwnerUID() string { return d.UID }

func (d NoteDocument) Fields() map[string]any {
	f := baseFields(d.ID, d.UID, d.CreatedAt, d.UpdatedAt)
	putText(f, "title", d.Title)
	putText(f, "content", d.Content)
	return f
}

// CollectionDocument is an indexed collection.
type CollectionDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
	UID         string    `json:"uid"`
}

func (d CollectionDocument) DocID() string    { return d.ID }
func (d CollectionDocument) OwnerUID() string { return d.UID }

func (d CollectionDocument) Fields() map[string]any {
	f := baseFields(d.ID, d.UID, d.CreatedAt, d.UpdatedAt)
	putText(f, "title", d.Title)
	putText(f, "description", d.Description)
	return f
}

// ConversationMessageDocument is an indexed conversation message.
type ConversationMessageDocument struct {
	ID        string      `json:"id"`
	ConvID    string      `json:"convId,omitempty"`
	ConvTitle string      `json:"convTitle,omitempty"`
	Content   string      `json:"content,omitempty"`
	Type      MessageKind `json:"type,omitempty"`
	CreatedAt time.Time   `json:"createdAt,omitzero"`
	UpdatedAt time.Time   `json:"updatedAt,omitzero"`
	UID       string      `json:"uid"`
}

func (d ConversationMessageDocument) DocID() string    { return d.ID }
func (d ConversationMessageDocument) OwnerUID() string { return d.UID }

func (d ConversationMessageDocument) Fields() map[string]any {
	f := baseFields(d.ID, d.UID, d.CreatedAt, d.UpdatedAt)
	putText(f, "convId", d.ConvID)
	putText(f, "convTitle", d.ConvTitle)
	putText(f, "content", d.Content)
	putText(f, "type", string(d.Type))
	return f
}

// SkillDocument is an indexed skill template.
type SkillDocument struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Description string    `json:"description,omitempty"`
	TplName     string    `json:"tplName,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
	UID         string    `json:"uid"`
}

func (d SkillDocument) DocID() string    { return d.ID }
func (d SkillDocument) OwnerUID() string { return d.UID }

func (d SkillDocument) Fields() map[string]any {
	f := baseFields(d.ID, d.UID, d.CreatedAt, d.UpdatedAt)
	putText(f, "displayName", d.DisplayName)
	putText(f, "description", d.Description)
	putText(f, "tplName", d.TplName)
	return f
}

// DecodeDocument unmarshals a JSON document body into the typed shape
// for the given entity type.
func DecodeDocument(t EntityType, data []byte) (Document, error) {
	var (
		doc Document
		err error
	)
	switch t {
	case TypeResource:
		var d ResourceDocument
		err = json.Unmarshal(data, &d)
		doc = d
	case TypeNote:
		var d NoteDocument
		err = json.Unmarshal(data, &d)
		doc = d
	case TypeCollection:
		var d CollectionDocument
		err = json.Unmarshal(data, &d)
		doc = d
	case TypeConversationMessage:
		var d ConversationMessageDocument
		err = json.Unmarshal(data, &d)
		doc = d
	case TypeSkill:
		var d SkillDocument
		err = json.Unmarshal(data, &d)
		doc = d
	default:
		return nil, errors.New(errors.ErrCodeUnknownEntityType,
			fmt.Sprintf("unknown entity type %q", t), nil)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidDocument,
			fmt.Sprintf("malformed %s document", t), err)
	}
	return doc, nil
}

// baseFields builds the stored fields shared by every document shape.
func baseFields(id, uid string, createdAt, updatedAt time.Time) map[string]any {
	f := map[string]any{
		"id":  id,
		"uid": uid,
	}
	if !createdAt.IsZero() {
		f["createdAt"] = createdAt.UTC().Format(time.RFC3339)
	}
	if !updatedAt.IsZero() {
		f["updatedAt"] = updatedAt.UTC().Format(time.RFC3339)
	}
	return f
}

// putText stores a text field, omitting empty values.
func putText(f map[string]any, name, value string) {
	if value != "" {
		f[name] = value
	}
}
