package errs

// Sentinel errors for common failure cases, matched by Kind via Is().

// Container lifecycle errors.
var (
	ErrContainerNotFound = &Error{Kind: NotFound, Detail: "container not found"}
	ErrContainerExists   = &Error{Kind: Exists, Detail: "container already exists"}
	ErrNotRunning        = &Error{Kind: Invalid, Detail: "container is not running"}
	ErrNotCreated        = &Error{Kind: Invalid, Detail: "container is not in created state"}
	ErrNotStopped        = &Error{Kind: Invalid, Detail: "container is not stopped"}
	ErrNoInitProcess     = &Error{Kind: Invalid, Detail: "no init process"}
)

// Configuration errors.
var (
	ErrEmptyContainerID = &Error{Kind: Invalid, Detail: "container name cannot be empty"}
	ErrInvalidName      = &Error{Kind: Invalid, Detail: "container name does not match [A-Za-z0-9_-]{1,64}"}
	ErrInvalidRootfs    = &Error{Kind: Invalid, Detail: "rootfs path is invalid"}
	ErrPathTraversal    = &Error{Kind: Invalid, Detail: "path traversal detected"}
)

// Cgroup errors.
var (
	ErrCgroupNotFound     = &Error{Kind: NotFound, Detail: "cgroup not found"}
	ErrCgroupExists       = &Error{Kind: Exists, Detail: "cgroup directory already exists and is non-empty"}
	ErrCgroupUnsupported  = &Error{Kind: Unsupported, Detail: "required cgroup controllers unavailable"}
	ErrCgroupBusy         = &Error{Kind: Busy, Detail: "cgroup is populated"}
	ErrQuotaExceedsPeriod = &Error{Kind: Invalid, Detail: "quota exceeds period * 2^20"}
)

// Namespace errors.
var (
	ErrNamespaceSetup = &Error{Kind: Io, Detail: "failed to set up namespace"}
	ErrMappingOverlap = &Error{Kind: Invalid, Detail: "id mapping ranges overlap"}
)

// Rootfs errors.
var (
	ErrPivotRoot     = &Error{Kind: Io, Detail: "failed to pivot_root"}
	ErrMountFailed   = &Error{Kind: Io, Detail: "failed to mount"}
	ErrInvalidPivot  = &Error{Kind: Invalid, Detail: "put_old must be a direct child of new_root"}
	ErrRootfsPartial = &Error{Kind: Io, Detail: "partial rootfs construction rolled back"}
)

// Scheduler errors.
var (
	ErrSchedulerStopped  = &Error{Kind: Invalid, Detail: "scheduler is stopped"}
	ErrPSIUnsupported    = &Error{Kind: Unsupported, Detail: "PSI triggers unavailable"}
	ErrTooManyIOFailures = &Error{Kind: Io, Detail: "too many consecutive cgroup I/O failures"}
)

// Process errors.
var (
	ErrProcessNotFound = &Error{Kind: NotFound, Detail: "process not found"}
	ErrSignalFailed    = &Error{Kind: Io, Detail: "failed to send signal"}
)
