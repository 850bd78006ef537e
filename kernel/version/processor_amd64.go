package version

// ProcessorName is the name of the processor architecture.
const ProcessorName = "x86_64"
