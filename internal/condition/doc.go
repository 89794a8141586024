// Package condition implements the composable boolean trees that gate when a
// task may start and when it must stop.
//
// A tree is built once from Leaf, And, Or, Not and Lock nodes. Each tick the
// caller refreshes the leaves from live state with OnCheck and then folds the
// tree with Evaluate. The two traversals are kept separate so that lock
// discovery (FindAllLocks) never depends on leaf values.
package condition
