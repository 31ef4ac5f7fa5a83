package sim

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scenekit/internal/host"
	"github.com/dshills/scenekit/internal/host/frame"
)

type crate struct {
	*Node
	Weight int
}

func (c *crate) Duplicate() host.Object {
	return &crate{Node: c.Node.Clone(), Weight: c.Weight}
}

type lamp struct {
	*Node
}

type labeled interface {
	host.Object
	SimNode() *Node
}

func TestTree_FindAllOfTypeAndGroup(t *testing.T) {
	tree := NewTree("level1")
	a := &crate{Node: NewNode("a", "props")}
	b := &crate{Node: NewNode("b")}
	l := &lamp{Node: NewNode("l", "props")}
	require.NoError(t, tree.Add(a))
	require.NoError(t, tree.AddChild(a, b))
	require.NoError(t, tree.Add(l))

	crates := tree.FindAllOfType(reflect.TypeOf(a))
	require.Len(t, crates, 2)
	assert.Same(t, a, crates[0])
	assert.Same(t, b, crates[1])

	all := tree.FindAllOfType(reflect.TypeFor[labeled]())
	assert.Len(t, all, 3)

	props := tree.FindInGroup("props")
	assert.Equal(t, []host.Object{a, l}, props)
	assert.Equal(t, "level1", tree.CurrentScope())
}

func TestTree_FreeRunsHooksChildrenFirst(t *testing.T) {
	tree := NewTree("s")
	parent := &crate{Node: NewNode("p")}
	child := &crate{Node: NewNode("c")}
	require.NoError(t, tree.Add(parent))
	require.NoError(t, tree.AddChild(parent, child))

	var order []string
	tree.OnDestroy(parent, func() { order = append(order, "p") })
	tree.OnDestroy(child, func() { order = append(order, "c") })

	tree.Free(parent)
	assert.Equal(t, []string{"c", "p"}, order)
	assert.False(t, tree.IsAlive(parent))
	assert.False(t, tree.IsAlive(child))
	assert.Empty(t, tree.FindAllOfType(reflect.TypeOf(parent)))

	fired := false
	tree.OnDestroy(parent, func() { fired = true })
	assert.True(t, fired, "hooks on freed objects run immediately")
}

func TestTree_QueueFreeWithScheduler(t *testing.T) {
	sched := frame.New()
	tree := NewTree("s", WithScheduler(sched))
	c := &crate{Node: NewNode("c")}
	require.NoError(t, tree.Add(c))

	tree.QueueFree(c)
	assert.True(t, tree.IsAlive(c))
	assert.True(t, tree.IsQueuedForDeletion(c))

	sched.Process()
	assert.False(t, tree.IsAlive(c))
	assert.False(t, tree.IsQueuedForDeletion(c))
}

func TestTree_InstantiateAndTransform(t *testing.T) {
	tree := NewTree("s")
	tmpl := &crate{Node: NewNode("crate"), Weight: 7}

	obj, err := tree.Instantiate(tmpl)
	require.NoError(t, err)
	clone := obj.(*crate)
	assert.NotEqual(t, tmpl.ObjectID(), clone.ObjectID())
	assert.Equal(t, 7, clone.Weight)

	require.NoError(t, tree.Add(clone))
	tr := host.Transform{Position: host.Vec3{X: 1, Y: 2, Z: 3}}
	require.NoError(t, tree.SetTransform(clone, tr))
	assert.Equal(t, tr, clone.Transform())

	_, err = tree.Instantiate(&lamp{Node: NewNode("l")})
	assert.ErrorIs(t, err, ErrNotDuplicable)
}

func TestTree_ChangeSceneFreesEverything(t *testing.T) {
	tree := NewTree("menu")
	c := &crate{Node: NewNode("c")}
	require.NoError(t, tree.Add(c))

	tree.ChangeScene("level1")
	assert.False(t, tree.IsAlive(c))
	assert.Equal(t, "level1", tree.CurrentScope())
	assert.Empty(t, tree.Root().(interface{ Children() []host.Object }).Children())
}

func TestNewNode_GeneratesName(t *testing.T) {
	n := NewNode("")
	assert.Contains(t, n.ObjectName(), "node-")
	assert.NotZero(t, n.ObjectID())
}
