// Package version holds the compiled-in identification strings that the
// kernel prints when it comes up.
package version

const (
	// OSName is the operating system name.
	OSName = "Spinel"

	// Version is the kernel release string.
	Version = "0.1.0"

	// MachineName identifies the platform the image is built for.
	MachineName = "PC"
)

// Info groups the identification strings printed by the boot banner.
type Info struct {
	OSName    string
	Version   string
	Processor string
	Machine   string
}

// Current returns the identification strings for the running kernel.
func Current() Info {
	return Info{
		OSName:    OSName,
		Version:   Version,
		Processor: ProcessorName,
		Machine:   MachineName,
	}
}
