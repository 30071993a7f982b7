// Package catalog loads the product menu and modifier chain definitions
// and resolves free-text order hints against them.
package catalog
