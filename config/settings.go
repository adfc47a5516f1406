package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Settings struct {
	Grid    GridSettings    `json:"grid"`
	Physics PhysicsSettings `json:"physics"`
	Server  ServerSettings  `json:"server"`
	Display DisplaySettings `json:"display"`
	Backend BackendSettings `json:"backend"`
}

type GridSettings struct {
	Nx int `json:"nx"`
	Ny int `json:"ny"`
}

type PhysicsSettings struct {
	Omega          float32 `json:"omega"`
	InletVelocityX float32 `json:"inletVelocityX"`
	InletVelocityY float32 `json:"inletVelocityY"`
	InletFraction  float32 `json:"inletFraction"`
}

type ServerSettings struct {
	Enabled          bool `json:"enabled"`
	Port             int  `json:"port"`
	UpdateIntervalMs int  `json:"updateIntervalMs"`
}

type DisplaySettings struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	StepsPerFrame int     `json:"stepsPerFrame"`
	SpeedScale    float32 `json:"speedScale"`
	BrushRadius   int     `json:"brushRadius"`
}

type BackendSettings struct {
	// "gl" for the compute-shader backend, "cpu" for the in-process one.
	Name string `json:"name"`
}

// Default returns the built-in configuration.
func Default() Settings {
	return Settings{
		Grid: GridSettings{
			Nx: 512,
			Ny: 256,
		},
		Physics: PhysicsSettings{
			Omega:          1.7,
			InletVelocityX: 0.10,
			InletVelocityY: 0.0,
			InletFraction:  0.5,
		},
		Server: ServerSettings{
			Enabled:          false,
			Port:             8080,
			UpdateIntervalMs: 100,
		},
		Display: DisplaySettings{
			Width:         1024,
			Height:        512,
			StepsPerFrame: 10,
			SpeedScale:    0.2,
			BrushRadius:   4,
		},
		Backend: BackendSettings{
			Name: "gl",
		},
	}
}

// Load reads path, falling back to defaults when the file is missing.
func Load(path string) (Settings, error) {
	settings := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No %s found, using defaults\n", path)
			return settings, nil
		}
		return settings, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&settings); err != nil {
		return settings, fmt.Errorf("error parsing %s: %v", path, err)
	}

	fmt.Printf("Loaded settings: %dx%d grid, omega %.3f, backend %s\n",
		settings.Grid.Nx, settings.Grid.Ny, settings.Physics.Omega, settings.Backend.Name)
	return settings, nil
}

// Save writes the settings to path as indented JSON.
func Save(path string, settings Settings) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(settings)
}
