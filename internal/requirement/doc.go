// Package requirement models the declarative pre- and post-conditions a task
// needs satisfied around its main logic, and the registry that stores them.
//
// Every requirement carries a sealed Spec variant. Satisfied and Fulfill
// switch over the variants exhaustively; adding a variant means updating both.
package requirement
