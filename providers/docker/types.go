package docker

// ContainerSpec is the attribute schema of docker_container resources.
type ContainerSpec struct {
	Image       string             `json:"image"`
	Name        string             `json:"name"`
	Command     []string           `json:"command"`
	Ports       map[string]int     `json:"ports"`
	Env         map[string]string  `json:"env"`
	Networks    []string           `json:"networks"`
	Volumes     []string           `json:"volumes"`
	Labels      map[string]string  `json:"labels"`
	WorkingDir  string             `json:"working_dir"`
	User        string             `json:"user"`
	Restart     string             `json:"restart"`
	Healthcheck *HealthcheckSpec   `json:"healthcheck"`
	Logging     *LoggingSpec       `json:"logging"`
	Secrets     []SecretMount      `json:"secrets"`
}

type HealthcheckSpec struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval"`
	Timeout     string   `json:"timeout"`
	StartPeriod string   `json:"start_period"`
	Retries     int      `json:"retries"`
}

type LoggingSpec struct {
	Driver  string            `json:"driver"`
	Options map[string]string `json:"options"`
}

// SecretMount bind-mounts a host file read-only into the container.
type SecretMount struct {
	File   string `json:"file"`
	Target string `json:"target"`
}

type ContainerOutputs struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// NetworkSpec is the attribute schema of docker_network resources.
type NetworkSpec struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type NetworkOutputs struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// VolumeSpec is the attribute schema of docker_volume resources.
type VolumeSpec struct {
	Name   string            `json:"name"`
	Driver string            `json:"driver"`
	Labels map[string]string `json:"labels"`
}

type VolumeOutputs struct {
	Name       string `json:"name"`
	Driver     string `json:"driver"`
	Mountpoint string `json:"mountpoint"`
}

// ImageSpec is the attribute schema of docker_image resources. An image with
// a build context is built locally; otherwise it is pulled.
type ImageSpec struct {
	Name         string `json:"name"`
	BuildContext string `json:"build_context"`
	Dockerfile   string `json:"dockerfile"`
}

type ImageOutputs struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
