package versioning

var (
	ApplicationVersion string

	Commit string
)

// Version is the human readable build identifier.
func Version() string {
	v := ApplicationVersion
	if v == "" {
		v = "dev"
	}
	if Commit != "" {
		v += "-" + Commit
	}
	return v
}
