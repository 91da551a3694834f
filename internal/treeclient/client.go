// Package treeclient is the in-process mirror of the admin category tree
// editor. It keeps an optimistic local copy of the tree: every operation
// mutates the local state immediately and then issues the corresponding API
// call. A newly added node carries a locally generated temporary id until
// the server confirms the authoritative one; on a failed call the local
// mutation is rolled back by refetching the server tree, so client and
// server state never stay divergent.
package treeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

// renameDebounceDelay is how long a node's rename is held back waiting for
// further keystrokes before it is sent.
const renameDebounceDelay = 500 * time.Millisecond

var (
	ErrNodeNotFound = errors.New("node not found in local tree")
	ErrAtTop        = errors.New("node already at the top")
	ErrAtBottom     = errors.New("node already at the bottom")
)

// Node is one entry of the mirrored tree.
type Node struct {
	ID       string
	Name     string
	Locale   string
	Children []*Node
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	renameDelay time.Duration

	mu     sync.Mutex
	roots  []*Node
	timers map[string]*time.Timer
	rng    *rand.Rand
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the Bearer token sent with every API call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRenameDelay overrides the rename debounce interval.
func WithRenameDelay(d time.Duration) Option {
	return func(c *Client) { c.renameDelay = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
		renameDelay: renameDebounceDelay,
		timers:      map[string]*time.Timer{},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type actionData struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Value  string `json:"value,omitempty"`
}

type apiResponse struct {
	Message string `json:"message"`
	NewID   string `json:"newId"`
}

// serverNode matches the projector's JSON shape.
type serverNode struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Order    int          `json:"order"`
	Locale   string       `json:"locale"`
	Children []serverNode `json:"children"`
}

type treeResponse struct {
	Data struct {
		Categories map[string][]serverNode `json:"categories"`
	} `json:"data"`
}

func (c *Client) send(ctx context.Context, data actionData) (apiResponse, error) {
	payload, err := json.Marshal(map[string]actionData{"data": data})
	if err != nil {
		return apiResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/categories", bytes.NewReader(payload))
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer res.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return apiResponse{}, err
	}
	if res.StatusCode != http.StatusOK {
		return apiResponse{}, fmt.Errorf("category action %s: %s", data.Action, parsed.Message)
	}
	return parsed, nil
}

// Refresh replaces the local tree with the server's current state.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/categories", nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch categories: status %d", res.StatusCode)
	}

	var parsed treeResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return err
	}

	roots := []*Node{}
	for _, locale := range models.SupportedLocales {
		for _, n := range parsed.Data.Categories[string(locale)] {
			roots = append(roots, convert(n))
		}
	}

	c.mu.Lock()
	c.roots = roots
	c.mu.Unlock()
	return nil
}

func convert(n serverNode) *Node {
	node := &Node{ID: n.ID, Name: n.Name, Locale: n.Locale}
	for _, child := range n.Children {
		node.Children = append(node.Children, convert(child))
	}
	return node
}

// Roots returns a snapshot of the current local tree.
func (c *Client) Roots() []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Node{}, c.roots...)
}

// tempID mirrors the placeholder ids the browser editor generates: an
// 8-digit number under a category- prefix.
func (c *Client) tempID() string {
	return fmt.Sprintf("category-%d", 10000000+c.rng.Intn(90000000))
}

// findNode locates id in the local tree and returns the sibling slice it
// lives in plus its index there.
func (c *Client) findNode(id string) (siblings *[]*Node, index int, ok bool) {
	return findIn(&c.roots, id)
}

func findIn(siblings *[]*Node, id string) (*[]*Node, int, bool) {
	for i, n := range *siblings {
		if n.ID == id {
			return siblings, i, true
		}
		if s, j, ok := findIn(&n.Children, id); ok {
			return s, j, ok
		}
	}
	return nil, 0, false
}

// rollback reconciles the local tree from the server after a failed call.
func (c *Client) rollback(ctx context.Context, cause error) {
	logrus.WithError(cause).Warn("Category action failed, refetching tree")
	if err := c.Refresh(ctx); err != nil {
		logrus.WithError(err).Error("Failed to refetch category tree")
	}
}

// confirm swaps a temporary id for the authoritative one the server
// returned, so later operations address the right record.
func (c *Client) confirm(tempID, newID string) {
	if newID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if siblings, i, ok := c.findNode(tempID); ok {
		(*siblings)[i].ID = newID
	}
}

func (c *Client) applyAdd(ctx context.Context, tempID string, data actionData) (string, error) {
	res, err := c.send(ctx, data)
	if err != nil {
		c.rollback(ctx, err)
		return "", err
	}
	c.confirm(tempID, res.NewID)
	return res.NewID, nil
}

// AddFirst creates the first root category. Returns the new authoritative
// id.
func (c *Client) AddFirst(ctx context.Context) (string, error) {
	temp := c.tempID()

	c.mu.Lock()
	c.roots = append(c.roots, &Node{ID: temp})
	c.mu.Unlock()

	return c.applyAdd(ctx, temp, actionData{Action: "add-first"})
}

// Add inserts a new sibling immediately after the given node.
func (c *Client) Add(ctx context.Context, afterID string) (string, error) {
	temp := c.tempID()

	c.mu.Lock()
	siblings, i, ok := c.findNode(afterID)
	if !ok {
		c.mu.Unlock()
		return "", ErrNodeNotFound
	}
	*siblings = append((*siblings)[:i+1], append([]*Node{{ID: temp}}, (*siblings)[i+1:]...)...)
	c.mu.Unlock()

	return c.applyAdd(ctx, temp, actionData{Action: "add", ID: afterID})
}

// AddNested appends a new child under the given node.
func (c *Client) AddNested(ctx context.Context, parentID string) (string, error) {
	temp := c.tempID()

	c.mu.Lock()
	siblings, i, ok := c.findNode(parentID)
	if !ok {
		c.mu.Unlock()
		return "", ErrNodeNotFound
	}
	parent := (*siblings)[i]
	parent.Children = append(parent.Children, &Node{ID: temp})
	c.mu.Unlock()

	return c.applyAdd(ctx, temp, actionData{Action: "add-nested", ID: parentID})
}

// Delete removes the node and its subtree.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	siblings, i, ok := c.findNode(id)
	if !ok {
		c.mu.Unlock()
		return ErrNodeNotFound
	}
	*siblings = append((*siblings)[:i], (*siblings)[i+1:]...)
	c.mu.Unlock()

	if _, err := c.send(ctx, actionData{Action: "delete", ID: id}); err != nil {
		c.rollback(ctx, err)
		return err
	}
	return nil
}

// MoveUp swaps the node with its previous sibling. Like the browser editor,
// which disables the up button on the first item, moving the topmost node
// fails locally without a network call.
func (c *Client) MoveUp(ctx context.Context, id string) error {
	return c.move(ctx, id, "up")
}

// MoveDown swaps the node with its next sibling.
func (c *Client) MoveDown(ctx context.Context, id string) error {
	return c.move(ctx, id, "down")
}

func (c *Client) move(ctx context.Context, id, direction string) error {
	c.mu.Lock()
	siblings, i, ok := c.findNode(id)
	if !ok {
		c.mu.Unlock()
		return ErrNodeNotFound
	}
	j := i - 1
	if direction == "down" {
		j = i + 1
	}
	if j < 0 {
		c.mu.Unlock()
		return ErrAtTop
	}
	if j >= len(*siblings) {
		c.mu.Unlock()
		return ErrAtBottom
	}
	(*siblings)[i], (*siblings)[j] = (*siblings)[j], (*siblings)[i]
	c.mu.Unlock()

	if _, err := c.send(ctx, actionData{Action: direction, ID: id}); err != nil {
		c.rollback(ctx, err)
		return err
	}
	return nil
}

// Rename updates the node's name locally right away and debounces the
// network call per node, so concurrent edits of different nodes are not
// cross-debounced.
func (c *Client) Rename(id, value string) error {
	c.mu.Lock()
	siblings, i, ok := c.findNode(id)
	if !ok {
		c.mu.Unlock()
		return ErrNodeNotFound
	}
	(*siblings)[i].Name = value

	if timer, ok := c.timers[id]; ok {
		timer.Stop()
	}
	c.timers[id] = time.AfterFunc(c.renameDelay, func() {
		c.flushRename(id, value)
	})
	c.mu.Unlock()
	return nil
}

func (c *Client) flushRename(id, value string) {
	c.mu.Lock()
	delete(c.timers, id)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.send(ctx, actionData{Action: "rename", ID: id, Value: value}); err != nil {
		c.rollback(ctx, err)
	}
}

// Flush fires all pending debounced renames immediately.
func (c *Client) Flush() {
	c.mu.Lock()
	pending := make([]*time.Timer, 0, len(c.timers))
	for _, timer := range c.timers {
		pending = append(pending, timer)
	}
	c.mu.Unlock()

	for _, timer := range pending {
		if timer.Stop() {
			timer.Reset(0)
		}
	}
}

// SetLocale changes the node's locale.
func (c *Client) SetLocale(ctx context.Context, id, value string) error {
	c.mu.Lock()
	siblings, i, ok := c.findNode(id)
	if !ok {
		c.mu.Unlock()
		return ErrNodeNotFound
	}
	(*siblings)[i].Locale = value
	c.mu.Unlock()

	if _, err := c.send(ctx, actionData{Action: "set-locale", ID: id, Value: value}); err != nil {
		c.rollback(ctx, err)
		return err
	}
	return nil
}
