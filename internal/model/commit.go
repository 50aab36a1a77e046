package model

// CommitStatus tracks whether a Commit is awaiting a build, currently
// building, or has been superseded. All status enums in this package
// serialize to their lowercase string form, never an integer, so the
// stored rows and their JSON form read the same way a hand-written client
// would expect.
type CommitStatus string

const (
	CommitNew      CommitStatus = "new"
	CommitBuilding CommitStatus = "building"
	CommitOld      CommitStatus = "old"
)

// Commit is one crawled repository state: a sha on a Channel, captured with
// just enough metadata (message, author) to show in a build list without a
// second round trip to the repository.
type Commit struct {
	ID        int64        `json:"id"         db:"id"`
	Status    CommitStatus `json:"status"     db:"status"`
	SHA       string       `json:"sha"        db:"sha"`
	Message   string       `json:"message"    db:"message"`
	UserName  string       `json:"user_name"  db:"user_name"`
	UserEmail string       `json:"user_email" db:"user_email"`
	RepoID    int64        `json:"repo_id"    db:"repo_id"`
	ChannelID int64        `json:"channel_id" db:"channel_id"`
}
