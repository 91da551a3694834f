package category

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

// Node is one projected category with its children nested underneath.
type Node struct {
	ID       primitive.ObjectID `json:"id"`
	Name     string             `json:"name"`
	Order    int                `json:"order"`
	Locale   models.Locale      `json:"locale"`
	Children []Node             `json:"children"`
}

// BuildTree projects a flat category list into the subtree rooted below
// parentID (nil for the roots). The projection is pure: the same input set
// yields the same tree regardless of input order. The stored records are
// expected to form a forest; a visited guard over ids makes the projection
// terminate even on malformed data containing parent_id cycles, in which
// case a node inside a cycle is emitted only once.
func BuildTree(flat []models.Category, parentID *primitive.ObjectID) []Node {
	byParent := indexByParent(flat)
	return project(byParent, parentKey(parentID), map[string]bool{})
}

// BuildLocaleTrees groups the root categories by locale and sorts every
// sibling list by order, which is the draw order the admin page renders.
func BuildLocaleTrees(flat []models.Category) map[models.Locale][]Node {
	trees := map[models.Locale][]Node{}
	for _, root := range BuildTree(flat, nil) {
		trees[root.Locale] = append(trees[root.Locale], root)
	}
	for locale := range trees {
		sortNodes(trees[locale])
	}
	return trees
}

func indexByParent(flat []models.Category) map[string][]models.Category {
	byParent := make(map[string][]models.Category, len(flat))
	for _, c := range flat {
		key := parentKey(c.ParentID)
		byParent[key] = append(byParent[key], c)
	}
	return byParent
}

func project(byParent map[string][]models.Category, key string, visited map[string]bool) []Node {
	nodes := []Node{}
	for _, c := range byParent[key] {
		idKey := c.ID.Hex()
		if visited[idKey] {
			continue
		}
		visited[idKey] = true

		nodes = append(nodes, Node{
			ID:       c.ID,
			Name:     c.Name,
			Order:    c.Order,
			Locale:   c.Locale,
			Children: project(byParent, idKey, visited),
		})
	}
	return nodes
}

// sortNodes orders every sibling list by order, recursively. Projection
// itself does not sort; this is the one rendering path that needs a stable
// visual order.
func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	for i := range nodes {
		sortNodes(nodes[i].Children)
	}
}
