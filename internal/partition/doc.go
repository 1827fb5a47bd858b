// Package partition holds the mutable population state of a cohort model.
//
// The state is a set of named categories, each an abundance vector indexed
// by age:
//
//   - [Category]: one cohort series over [MinAge, MaxAge]
//   - [Partition]: every category of the model, keyed by label
//   - [Snapshot]: an immutable deep copy of some or all categories
//   - [CombinedCategories]: read-only grouping of categories by label,
//     where "male+female" joins several categories into one group
//   - [CachedCombinedCategories]: combined categories plus a cache built
//     on demand with [CachedCombinedCategories.BuildCache]
//
// # Ownership
//
// The partition owns every abundance vector. Processes mutate categories in
// place; snapshots copy values out and never alias the live vectors.
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use. A model iteration owns
// its partition exclusively.
package partition
