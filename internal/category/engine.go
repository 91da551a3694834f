// Package category implements the ordering engine behind the admin tree
// editor. Every mutation keeps the per-parent invariant intact: the order
// values of the siblings sharing one parent_id are always exactly 1..n.
package category

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mkrajcovic/blog-backend/internal/adapters/repository"
	"github.com/mkrajcovic/blog-backend/internal/localization"
	"github.com/mkrajcovic/blog-backend/internal/models"
)

type Op string

const (
	OpAddFirst  Op = "add-first"
	OpAdd       Op = "add"
	OpAddNested Op = "add-nested"
	OpDelete    Op = "delete"
	OpUp        Op = "up"
	OpDown      Op = "down"
	OpRename    Op = "rename"
	OpSetLocale Op = "set-locale"
)

var (
	ErrInvalidAction  = errors.New("invalid action")
	ErrMissingID      = errors.New("missing category id")
	ErrInvalidValue   = errors.New("invalid value")
	ErrAtTop          = errors.New("category already at the top")
	ErrAtBottom       = errors.New("category already at the bottom")
	ErrOrderOutOfSync = errors.New("sibling order out of sync")
)

// Action is one tree-editor operation as received from the client.
type Action struct {
	Op       Op
	ID       string
	Value    string
	ValueSet bool
	// Locale of the request, used only to localize the placeholder name of
	// newly created categories.
	Locale models.Locale
}

type Result struct {
	NewID string
}

// Engine applies tree-editor actions against the category store. Multi-step
// mutations (shift-then-insert, two-record swaps, subtree delete plus gap
// close) are serialized per sibling group through a parent-keyed mutex, so
// two concurrent edits of the same group cannot interleave and break the
// contiguity invariant within this process.
type Engine struct {
	repo          repository.CategoryRepository
	defaultLocale models.Locale

	mu      sync.Mutex
	parents map[string]*sync.Mutex
}

func NewEngine(repo repository.CategoryRepository, defaultLocale models.Locale) *Engine {
	if !models.IsSupportedLocale(defaultLocale) {
		defaultLocale = models.LocaleEN
	}
	return &Engine{
		repo:          repo,
		defaultLocale: defaultLocale,
		parents:       make(map[string]*sync.Mutex),
	}
}

// Apply dispatches a single action and returns the id of any newly created
// category.
func (e *Engine) Apply(ctx context.Context, action Action) (Result, error) {
	switch action.Op {
	case OpAddFirst:
		return e.addFirst(ctx, action)
	case OpAdd:
		return e.add(ctx, action)
	case OpAddNested:
		return e.addNested(ctx, action)
	case OpDelete:
		return Result{}, e.delete(ctx, action)
	case OpUp:
		return Result{}, e.move(ctx, action, -1)
	case OpDown:
		return Result{}, e.move(ctx, action, +1)
	case OpRename:
		return Result{}, e.rename(ctx, action)
	case OpSetLocale:
		return Result{}, e.setLocale(ctx, action)
	default:
		return Result{}, ErrInvalidAction
	}
}

func parentKey(parentID *primitive.ObjectID) string {
	if parentID == nil {
		return ""
	}
	return parentID.Hex()
}

// lockParent serializes mutations of one sibling group. The returned func
// releases the lock.
func (e *Engine) lockParent(parentID *primitive.ObjectID) func() {
	key := parentKey(parentID)

	e.mu.Lock()
	m, ok := e.parents[key]
	if !ok {
		m = &sync.Mutex{}
		e.parents[key] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (e *Engine) resolve(ctx context.Context, action Action) (models.Category, error) {
	if action.ID == "" {
		return models.Category{}, ErrMissingID
	}
	id, err := primitive.ObjectIDFromHex(action.ID)
	if err != nil {
		return models.Category{}, repository.ErrNotFound
	}
	return e.repo.FindByID(ctx, id)
}

// resolveLocked resolves the action's target and returns it together with
// the held lock of its sibling group. No operation ever reparents a
// category, so the parent learned from the unlocked first read is final;
// the record is read again under the lock so its order is current when the
// caller uses it. A target deleted between the two reads surfaces as
// ErrNotFound instead of mutating against a stale order.
func (e *Engine) resolveLocked(ctx context.Context, action Action) (models.Category, func(), error) {
	node, err := e.resolve(ctx, action)
	if err != nil {
		return models.Category{}, nil, err
	}

	unlock := e.lockParent(node.ParentID)

	fresh, err := e.repo.FindByID(ctx, node.ID)
	if err != nil {
		unlock()
		return models.Category{}, nil, err
	}
	return fresh, unlock, nil
}

// placeholderName is the localized display name a freshly created category
// starts with.
func (e *Engine) placeholderName(locale models.Locale) string {
	if !models.IsSupportedLocale(locale) {
		locale = e.defaultLocale
	}
	return localization.Dict(locale).NewCategory
}

func (e *Engine) insertAt(ctx context.Context, action Action, parentID *primitive.ObjectID, order int) (Result, error) {
	id, err := e.repo.Insert(ctx, models.Category{
		Name:     e.placeholderName(action.Locale),
		ParentID: parentID,
		Order:    order,
		Locale:   e.defaultLocale,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{NewID: id.Hex()}, nil
}

// addFirst appends a new root category after any existing roots. The client
// only offers the button on an empty tree, but the engine does not depend on
// that: on a populated tree the new node simply lands at the end.
func (e *Engine) addFirst(ctx context.Context, action Action) (Result, error) {
	unlock := e.lockParent(nil)
	defer unlock()

	max, err := e.repo.MaxOrder(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	return e.insertAt(ctx, action, nil, max+1)
}

// add inserts a new sibling immediately after the referenced category,
// shifting every later sibling up by one first so the slot is free.
func (e *Engine) add(ctx context.Context, action Action) (Result, error) {
	ref, unlock, err := e.resolveLocked(ctx, action)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	newOrder := ref.Order + 1
	if err := e.repo.ShiftOrders(ctx, ref.ParentID, newOrder, +1); err != nil {
		return Result{}, err
	}
	return e.insertAt(ctx, action, ref.ParentID, newOrder)
}

// addNested appends a new child at the end of the referenced category's
// child list, order 1 when there are no children yet. The parent's
// existence is re-checked under the child-group lock so a parent deleted
// after the resolve cannot gain a new child.
func (e *Engine) addNested(ctx context.Context, action Action) (Result, error) {
	parent, err := e.resolve(ctx, action)
	if err != nil {
		return Result{}, err
	}

	unlock := e.lockParent(&parent.ID)
	defer unlock()

	if _, err := e.repo.FindByID(ctx, parent.ID); err != nil {
		return Result{}, err
	}

	max, err := e.repo.MaxOrder(ctx, &parent.ID)
	if err != nil {
		return Result{}, err
	}
	return e.insertAt(ctx, action, &parent.ID, max+1)
}

// delete removes the category and its whole subtree, children before
// parents, then closes the order gap among the former siblings. The subtree
// walk is an explicit worklist, not call recursion, so hostile depth in the
// data cannot blow the stack.
//
// Only the deleted node's own sibling group is locked. Descendant groups
// disappear wholesale, so their internal order needs no protection; the one
// unguarded case is an insert under a descendant racing the walk, which the
// admin UI cannot issue (the subtree is gone from the page the moment
// delete is clicked) and which at worst leaves an unreachable record, never
// a broken sibling group.
func (e *Engine) delete(ctx context.Context, action Action) error {
	node, unlock, err := e.resolveLocked(ctx, action)
	if err != nil {
		return err
	}
	defer unlock()

	// Collect the subtree. A node always precedes its children in ordered,
	// so deleting in reverse removes children first.
	ordered := []primitive.ObjectID{}
	stack := []primitive.ObjectID{node.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ordered = append(ordered, id)

		children, err := e.repo.FindByParent(ctx, &id)
		if err != nil {
			return err
		}
		for _, child := range children {
			stack = append(stack, child.ID)
		}
	}

	for i := len(ordered) - 1; i >= 0; i-- {
		if err := e.repo.Delete(ctx, ordered[i]); err != nil {
			return err
		}
	}

	return e.repo.ShiftOrders(ctx, node.ParentID, node.Order+1, -1)
}

// move swaps the category's order with its adjacent sibling. delta is -1 for
// up and +1 for down. A missing adjacent record where one must exist is a
// data-integrity fault and is surfaced, never silently repaired.
func (e *Engine) move(ctx context.Context, action Action, delta int) error {
	node, unlock, err := e.resolveLocked(ctx, action)
	if err != nil {
		return err
	}
	defer unlock()

	if delta < 0 && node.Order <= 1 {
		return ErrAtTop
	}
	if delta > 0 {
		max, err := e.repo.MaxOrder(ctx, node.ParentID)
		if err != nil {
			return err
		}
		if node.Order >= max {
			return ErrAtBottom
		}
	}

	neighbor, err := e.repo.FindOneByParentOrder(ctx, node.ParentID, node.Order+delta)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderOutOfSync
		}
		return err
	}

	if err := e.repo.SetOrder(ctx, neighbor.ID, node.Order); err != nil {
		return err
	}
	return e.repo.SetOrder(ctx, node.ID, node.Order+delta)
}

func (e *Engine) rename(ctx context.Context, action Action) error {
	if !action.ValueSet {
		return ErrInvalidValue
	}
	node, err := e.resolve(ctx, action)
	if err != nil {
		return err
	}
	return e.repo.UpdateName(ctx, node.ID, action.Value)
}

func (e *Engine) setLocale(ctx context.Context, action Action) error {
	if !action.ValueSet || !models.IsSupportedLocale(models.Locale(action.Value)) {
		return ErrInvalidValue
	}
	node, err := e.resolve(ctx, action)
	if err != nil {
		return err
	}
	return e.repo.UpdateLocale(ctx, node.ID, models.Locale(action.Value))
}
