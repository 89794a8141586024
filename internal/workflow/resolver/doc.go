// Package resolver turns a requirement registry generation into the ordered
// fulfillment plan for one phase and evaluates which steps are still pending.
package resolver
