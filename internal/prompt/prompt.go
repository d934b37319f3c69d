package prompt

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config 壁纸提示词配置，所有字段均为自由文本，不做校验
type Config struct {
	Character         string `json:"character" yaml:"character"`
	Pose              string `json:"pose" yaml:"pose"`
	Suit              string `json:"suit" yaml:"suit"`
	Environment       string `json:"environment" yaml:"environment"`
	Lighting          string `json:"lighting" yaml:"lighting"`
	AnimationKeywords string `json:"animation_keywords" yaml:"animation_keywords"`
}

// DefaultPresetName 内置默认预设的名称
const DefaultPresetName = "default"

// Default 返回内置的默认配置
func Default() Config {
	return Config{
		Character:         "futuristic Spider-Man style character",
		Pose:              "dynamic low-angle crouching pose",
		Suit:              "sleek black and red high-tech suit with glowing red eyes and fiery energy flowing from one arm",
		Environment:       "Dark moody environment with wet reflective ground",
		Lighting:          "dramatic red and orange lighting, glowing energy particles, sparks and light trails",
		AnimationKeywords: "subtle motion blur, flowing energy animation, glowing particles moving, light flicker, slow cinematic motion, parallax depth effect, live wallpaper style",
	}
}

// ImagePrompt 组合静态图片生成的提示词
func ImagePrompt(cfg Config) string {
	return fmt.Sprintf("Ultra-detailed cinematic superhero wallpaper, %s in a %s, wearing a %s. %s, %s. "+
		"Hyper-realistic textures, sharp focus, realistic fabric details, glossy reflections, cinematic depth of field, "+
		"volumetric lighting, rim light, ultra sharp details. 4K vertical orientation, futuristic, epic, powerful, cinematic look.",
		cfg.Character, cfg.Pose, cfg.Suit, cfg.Environment, cfg.Lighting)
}

// AnimationPrompt 组合视频生成的提示词
func AnimationPrompt(cfg Config) string {
	return fmt.Sprintf("%s. Bring the character to life with cinematic motion.", cfg.AnimationKeywords)
}

// Merge 用 patch 中非空的字段覆盖 cfg
func (cfg Config) Merge(patch Config) Config {
	if patch.Character != "" {
		cfg.Character = patch.Character
	}
	if patch.Pose != "" {
		cfg.Pose = patch.Pose
	}
	if patch.Suit != "" {
		cfg.Suit = patch.Suit
	}
	if patch.Environment != "" {
		cfg.Environment = patch.Environment
	}
	if patch.Lighting != "" {
		cfg.Lighting = patch.Lighting
	}
	if patch.AnimationKeywords != "" {
		cfg.AnimationKeywords = patch.AnimationKeywords
	}
	return cfg
}

// Presets 按名称索引的提示词预设
type Presets map[string]Config

// presetFile 预设文件的 YAML 结构：
//
//	presets:
//	  neon:
//	    character: "..."
//	    environment: "..."
type presetFile struct {
	Presets map[string]Config `yaml:"presets"`
}

// LoadPresets 从 YAML 文件加载预设。未填写的字段使用默认配置补齐，
// 并且总会包含名为 default 的内置预设（文件中同名预设会覆盖它）。
func LoadPresets(path string) (Presets, error) {
	presets := Presets{DefaultPresetName: Default()}
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse preset file: %w", err)
	}

	for name, cfg := range file.Presets {
		presets[name] = Default().Merge(cfg)
	}
	return presets, nil
}

// Names 返回排序后的预设名称
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
