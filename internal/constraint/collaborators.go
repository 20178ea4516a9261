package constraint

// CallGraph is the external call-graph collaborator the constraint engine
// reads to derive auth-before-data and input-validation invariants. The
// core does not build call graphs; it only consumes this view of one.
type CallGraph interface {
	// EntryPoints returns every entry-point function name that transitively
	// reaches a data-access call.
	EntryPoints() []string
	// TransitiveCallees returns every function name reachable from fn,
	// including fn itself.
	TransitiveCallees(fn string) []string
}

// BoundaryStore is the external collaborator describing per-table data
// access points and which tables carry sensitive fields.
type BoundaryStore interface {
	// AccessPointsByTable returns, for a table name, the accessor function
	// names observed reading or writing it.
	AccessPointsByTable() map[string][]string
	// SensitiveTables returns the set of table names flagged as holding
	// sensitive fields.
	SensitiveTables() []string
}

// TestTopology is the external collaborator describing coverage and mock
// usage across the non-test function set.
type TestTopology interface {
	// CoverageRatio returns the fraction of non-test functions reachable
	// from at least one test.
	CoverageRatio() float64
	// AverageMockRatio returns the average, across tests, of mocked
	// dependencies over total dependencies.
	AverageMockRatio() float64
}

// ErrorTopology is the external collaborator describing try/catch and
// empty-catch prevalence across async functions.
type ErrorTopology interface {
	// AsyncTryCatchRatio returns the fraction of async functions whose
	// bodies are wrapped in try/catch (or the language's equivalent).
	AsyncTryCatchRatio() float64
	// EmptyCatchRatio returns the fraction of functions containing a catch
	// block with an empty body (including `except: pass`).
	EmptyCatchRatio() float64
}
