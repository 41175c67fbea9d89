package versions

import "github.com/Masterminds/semver/v3"

// IsNewerVersion reports whether newVersion is strictly greater than
// oldVersion. Versions that are not valid semver (such as "dev" builds)
// never compare as newer.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew != nil || errOld != nil {
		return false
	}
	return newSemver.GreaterThan(oldSemver)
}
