package sync

// Action is the mutation chosen for a file
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Reason explains why a file was left alone
type Reason string

const (
	ReasonSymlink          Reason = "symlink"
	ReasonNotInWhitelist   Reason = "not in directory whitelist"
	ReasonInExcludeDir     Reason = "in exclude list"
	ReasonInDeleteList     Reason = "in delete list"
	ReasonInBlacklist      Reason = "in file blacklist"
	ReasonLocalOverride    Reason = "local override"
	ReasonNewFileDisabled  Reason = "new-file policy disabled"
	ReasonNoDifference     Reason = "no difference"
	ReasonOverrideNoDelete Reason = "local override, deletion skipped"
	ReasonAlreadyAbsent    Reason = "already absent"
)

// FileToSync is one decided action. It lives for a single run.
type FileToSync struct {
	RelPath    string `json:"path"`
	Action     Action `json:"action"`
	SourcePath string `json:"source,omitempty"` // absolute path in the template tree
	DestPath   string `json:"dest"`             // absolute path in the working tree
	Reason     string `json:"reason,omitempty"`
}

// Exclusion records a file the pipeline decided not to touch
type Exclusion struct {
	Path   string `json:"path"`
	Reason Reason `json:"reason"`
}

// Failure records a per-file error; the run carries on past it
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Plan is the read-only output of discovery
type Plan struct {
	Files      []FileToSync
	Exclusions []Exclusion
	Failures   []Failure
}

// Count returns how many planned files carry action a.
func (p *Plan) Count(a Action) int {
	n := 0
	for _, f := range p.Files {
		if f.Action == a {
			n++
		}
	}
	return n
}

// Result summarizes one executed (or previewed) plan
type Result struct {
	DryRun      bool         `json:"dry_run"`
	Created     int          `json:"created"`
	Updated     int          `json:"updated"`
	Deleted     int          `json:"deleted"`
	Skipped     int          `json:"skipped"`
	Excluded    int          `json:"excluded"`
	Errors      int          `json:"errors"`
	BackedUp    int          `json:"backed_up"`
	BytesCopied int64        `json:"bytes_copied"`
	Files       []FileToSync `json:"files"`
	Exclusions  []Exclusion  `json:"exclusions"`
	Skips       []Exclusion  `json:"skips"`
	Failures    []Failure    `json:"failures"`
}

// Changed reports whether the run performed (or would perform) any mutation.
func (r Result) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

// resultBuilder accumulates outcomes while the executor walks the plan
type resultBuilder struct {
	res Result
}

func newResultBuilder(plan *Plan, dryRun bool) *resultBuilder {
	b := &resultBuilder{res: Result{DryRun: dryRun}}
	b.res.Files = append([]FileToSync{}, plan.Files...)
	b.res.Exclusions = append([]Exclusion{}, plan.Exclusions...)
	b.res.Skips = []Exclusion{}
	b.res.Failures = append([]Failure{}, plan.Failures...)
	return b
}

func (b *resultBuilder) applied(f FileToSync, bytes int64) {
	switch f.Action {
	case ActionCreate:
		b.res.Created++
	case ActionUpdate:
		b.res.Updated++
	case ActionDelete:
		b.res.Deleted++
	}
	b.res.BytesCopied += bytes
}

func (b *resultBuilder) backedUp() {
	b.res.BackedUp++
}

func (b *resultBuilder) skipped(f FileToSync, reason Reason) {
	b.res.Skips = append(b.res.Skips, Exclusion{Path: f.RelPath, Reason: reason})
}

func (b *resultBuilder) failed(relPath string, err error) {
	b.res.Failures = append(b.res.Failures, Failure{Path: relPath, Err: err.Error()})
}

// build finalizes the counters derived from the audit lists.
func (b *resultBuilder) build() Result {
	res := b.res
	res.Skipped = len(res.Skips)
	res.Excluded = len(res.Exclusions)
	res.Errors = len(res.Failures)
	return res
}
