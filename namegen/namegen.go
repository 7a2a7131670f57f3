package namegen

import (
	"regexp"
	"strings"

	vendor "github.com/anandvarma/namegen"
)

var (
	gen     = vendor.New()
	invalid = regexp.MustCompile(`[^a-z0-9]+`)
)

type ID string

func Get() ID {
	return ID(gen.Get())
}

func (id ID) String() string {
	return string(id)
}

// ClusterName returns a random name usable in tags and security group names.
func ClusterName() string {
	return Sanitize(Get().String())
}

// Sanitize lowercases s and replaces anything but letters and digits with dashes.
func Sanitize(s string) string {
	return strings.Trim(invalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
