// Package platform contains filesystem helpers for download artifacts and
// source-specific URL handling such as YouTube playlist narrowing.
package platform
