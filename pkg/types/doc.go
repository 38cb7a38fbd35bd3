// Package types defines the Database and Collection interfaces, the backend
// configuration, and the standard errors shared by every docmodel storage
// backend. The model layer compiles selectors and update documents; a
// backend only has to execute them.
package types
