package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// QuestionType enumerates the supported answer widgets.
type QuestionType string

const (
	QuestionRating  QuestionType = "rating"
	QuestionTags    QuestionType = "tags"
	QuestionBoolean QuestionType = "boolean"
	QuestionText    QuestionType = "text"
)

// Question is one static survey question. Loaded once per client and
// never mutated afterwards.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Label         string       `json:"label"`
	Options       []string     `json:"options,omitempty"`
	AIUse         bool         `json:"ai_use"`
	MaxSelections int          `json:"max_selections,omitempty"`
	Required      *bool        `json:"required,omitempty"`
	Multiple      *bool        `json:"multiple,omitempty"`
}

// IsRequired reports whether the question must be answered before
// submission. Absence of the flag means required.
func (q *Question) IsRequired() bool { return q.Required == nil || *q.Required }

// IsMultiple reports whether a tags question accepts more than one
// selection. When the flag is absent, multiplicity is inferred from
// MaxSelections.
func (q *Question) IsMultiple() bool {
	if q.Type != QuestionTags {
		return false
	}
	if q.Multiple != nil {
		return *q.Multiple
	}
	return q.MaxSelections > 1
}

// HasOption reports whether s is one of the question's options.
func (q *Question) HasOption(s string) bool {
	for _, opt := range q.Options {
		if opt == s {
			return true
		}
	}
	return false
}

// Client is one configured business: its posting link, storage webhook
// and question list.
type Client struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	PostingLink string     `json:"posting_link"`
	WebhookURL  string     `json:"webhook_url"`
	Theme       string     `json:"theme"`
	Questions   []Question `json:"questions"`
}

// Catalog is the read-only set of configured clients, keyed by id.
type Catalog struct {
	clients map[string]*Client
}

// New builds a catalog from the given clients.
func New(clients ...*Client) (*Catalog, error) {
	c := &Catalog{clients: map[string]*Client{}}
	for _, cl := range clients {
		if err := validateClient(cl); err != nil {
			return nil, err
		}
		if _, dup := c.clients[cl.ID]; dup {
			return nil, fmt.Errorf("duplicate client id %q", cl.ID)
		}
		c.clients[cl.ID] = cl
	}
	return c, nil
}

// Load reads a JSON catalog file: an array of clients.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var clients []*Client
	if err := json.Unmarshal(b, &clients); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(clients...)
}

// Get returns the client for id, or nil when unknown.
func (c *Catalog) Get(id string) *Client {
	return c.clients[id]
}

// List returns all clients ordered by id.
func (c *Catalog) List() []*Client {
	out := make([]*Client, 0, len(c.clients))
	for _, cl := range c.clients {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func validateClient(cl *Client) error {
	if cl == nil || cl.ID == "" {
		return fmt.Errorf("client id required")
	}
	if cl.Name == "" {
		return fmt.Errorf("client %s: name required", cl.ID)
	}
	seen := map[string]bool{}
	for i := range cl.Questions {
		q := &cl.Questions[i]
		if q.ID == "" || q.Label == "" {
			return fmt.Errorf("client %s: question %d needs id and label", cl.ID, i)
		}
		if seen[q.ID] {
			return fmt.Errorf("client %s: duplicate question id %q", cl.ID, q.ID)
		}
		seen[q.ID] = true
		switch q.Type {
		case QuestionRating, QuestionBoolean, QuestionText:
		case QuestionTags:
			if len(q.Options) == 0 {
				return fmt.Errorf("client %s: question %s needs options", cl.ID, q.ID)
			}
		default:
			return fmt.Errorf("client %s: question %s has unknown type %q", cl.ID, q.ID, q.Type)
		}
	}
	return nil
}
