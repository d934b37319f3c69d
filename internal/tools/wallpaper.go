package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"nox-wallpaper/common"
	"nox-wallpaper/internal/prompt"
	"nox-wallpaper/internal/utils"
	"nox-wallpaper/internal/workflow"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// KeyOfferer 接收调用方直接提供的 API Key
type KeyOfferer interface {
	Offer(key string)
}

// WallpaperTools 把壁纸工作流暴露为 MCP tools
type WallpaperTools struct {
	wf      *workflow.Workflow
	presets prompt.Presets
	keys    KeyOfferer
}

// NewWallpaperTools 创建 WallpaperTools，keys 可以为 nil
func NewWallpaperTools(wf *workflow.Workflow, presets prompt.Presets, keys KeyOfferer) *WallpaperTools {
	return &WallpaperTools{wf: wf, presets: presets, keys: keys}
}

// 可通过 wallpaper_configure 修改的字段
var promptFields = []struct {
	name string
	desc string
	set  func(*prompt.Config, string)
}{
	{"character", "Who the wallpaper shows", func(c *prompt.Config, v string) { c.Character = v }},
	{"pose", "How the character is posed", func(c *prompt.Config, v string) { c.Pose = v }},
	{"suit", "What the character wears", func(c *prompt.Config, v string) { c.Suit = v }},
	{"environment", "Scene around the character", func(c *prompt.Config, v string) { c.Environment = v }},
	{"lighting", "Lighting of the scene", func(c *prompt.Config, v string) { c.Lighting = v }},
	{"animation_keywords", "Motion to add when animating the wallpaper", func(c *prompt.Config, v string) { c.AnimationKeywords = v }},
}

// Register 注册所有壁纸 tools
func (t *WallpaperTools) Register(s *server.MCPServer) error {
	configureOpts := []mcp.ToolOption{
		mcp.WithDescription("Update the wallpaper prompt. Only the given fields change. Optionally start from a named preset."),
		mcp.WithString("preset",
			mcp.Description(fmt.Sprintf("Preset to start from, one of: %s", strings.Join(t.presets.Names(), ", "))),
		),
	}
	for _, f := range promptFields {
		configureOpts = append(configureOpts, mcp.WithString(f.name, mcp.Description(f.desc)))
	}
	s.AddTool(mcp.NewTool("wallpaper_configure", configureOpts...), t.handleConfigure)

	s.AddTool(mcp.NewTool(
		"wallpaper_generate_image",
		mcp.WithDescription("Generate a 9:16 wallpaper image from the current prompt configuration. Clears any previous video."),
	), t.handleGenerateImage)

	s.AddTool(mcp.NewTool(
		"wallpaper_animate",
		mcp.WithDescription("Animate the current wallpaper image into a short 720p 9:16 video. Requires a generated image and a selected API key. May take several minutes."),
	), t.handleAnimate)

	s.AddTool(mcp.NewTool(
		"wallpaper_state",
		mcp.WithDescription("Show the wallpaper workflow state: status, image and video references, prompt configuration and credential status."),
	), t.handleState)

	s.AddTool(mcp.NewTool(
		"wallpaper_select_credential",
		mcp.WithDescription("Select the API key used for video generation. Without api_key the key is re-read from the environment."),
		mcp.WithString("api_key",
			mcp.Description("API key to use"),
		),
	), t.handleSelectCredential)

	return nil
}

func (t *WallpaperTools) handleConfigure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := t.wf.Snapshot().Prompt

	if name := req.GetString("preset", ""); name != "" {
		preset, ok := t.presets[name]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown preset %q, available: %s", name, strings.Join(t.presets.Names(), ", "))), nil
		}
		cfg = preset
	}

	var patch prompt.Config
	for _, f := range promptFields {
		if v := strings.TrimSpace(req.GetString(f.name, "")); v != "" {
			f.set(&patch, v)
		}
	}
	cfg = cfg.Merge(patch)

	if err := t.wf.SetPromptConfig(cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update configuration: %v", err)), nil
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return mcp.NewToolResultText(fmt.Sprintf("Prompt configuration updated:\n%s", data)), nil
}

func (t *WallpaperTools) handleGenerateImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.wf.GenerateImage(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate image: %v", err)), nil
	}

	imageRef := t.wf.Snapshot().ImageRef
	if utils.IsDataURI(imageRef) {
		data, mimeType, err := utils.ParseDataURI(imageRef)
		if err == nil {
			return mcp.NewToolResultImage("Generated wallpaper image", base64.StdEncoding.EncodeToString(data), mimeType), nil
		}
		common.WithError(err).Warn("Generated image reference is not a valid data URI")
	}
	return mcp.NewToolResultText(fmt.Sprintf("Generated image: %s", imageRef)), nil
}

func (t *WallpaperTools) handleAnimate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.wf.GenerateVideo(ctx); err != nil {
		if errors.Is(err, workflow.ErrCredentialRequired) {
			return mcp.NewToolResultError("an API key must be selected first, call wallpaper_select_credential"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to animate wallpaper: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Generated video: %s", t.wf.Snapshot().VideoRef)), nil
}

func (t *WallpaperTools) handleState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := t.wf.Snapshot()
	// data URI 太长，只保留开头
	if utils.IsDataURI(snap.ImageRef) {
		snap.ImageRef = utils.TruncateForLog(snap.ImageRef, 64)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode state: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *WallpaperTools) handleSelectCredential(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if key := strings.TrimSpace(req.GetString("api_key", "")); key != "" && t.keys != nil {
		t.keys.Offer(key)
	}

	if err := t.wf.SelectCredential(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to select API key: %v", err)), nil
	}
	return mcp.NewToolResultText("API key selected"), nil
}
