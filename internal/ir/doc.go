// Package ir provides the domain types shared by every bylines package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps IR the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Record, author and term identifiers are int64 (store row ids)
//   - Term slugs are derived only through TermSlug so every component agrees
//     on the normalized form
//   - All JSON tags use snake_case
package ir
