package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"nox-wallpaper/common"
	"nox-wallpaper/internal/credential"
	"nox-wallpaper/internal/genai/gemini"
	"nox-wallpaper/internal/prompt"
)

// Status 工作流状态
type Status string

const (
	StatusIdle            Status = "idle"
	StatusGeneratingImage Status = "generating-image"
	StatusGeneratingVideo Status = "generating-video"
	StatusError           Status = "error"
)

var (
	// ErrBusy 已有生成任务在进行中
	ErrBusy = errors.New("a generation is already in progress")
	// ErrNoImage 生成视频前必须先生成图片
	ErrNoImage = errors.New("generate an image before animating it")
	// ErrCredentialRequired 生成视频需要先选择 API Key
	ErrCredentialRequired = errors.New("an API key must be selected before animating")
)

const (
	imageFailureMessage = "Failed to generate image."
	videoFailureMessage = "Failed to animate wallpaper."

	// 凭证不被服务端识别时的错误特征
	credentialNotFoundMarker = "Requested entity was not found"
)

// State 前端读取的工作流状态。VideoRef 只会在 ImageRef 存在时被设置。
type State struct {
	ImageRef     string `json:"image_ref,omitempty"`
	VideoRef     string `json:"video_ref,omitempty"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Busy 是否有生成任务在进行中
func (s State) Busy() bool {
	return s.Status == StatusGeneratingImage || s.Status == StatusGeneratingVideo
}

// Snapshot 前端渲染所需的完整视图
type Snapshot struct {
	State
	HasCredential    bool          `json:"has_credential"`
	Prompt           prompt.Config `json:"prompt"`
	CanGenerateImage bool          `json:"can_generate_image"`
	CanGenerateVideo bool          `json:"can_generate_video"`
}

// Listener 状态变化回调，在锁外调用
type Listener func(Snapshot)

// Workflow 两阶段生成的状态机。同一时间只允许一个生成任务。
type Workflow struct {
	generator gemini.WallpaperIface
	selector  credential.Selector

	mu            sync.Mutex
	state         State
	prompt        prompt.Config
	hasCredential bool
	listeners     []Listener
}

// New 创建处于 idle 状态的工作流
func New(generator gemini.WallpaperIface, selector credential.Selector, initial prompt.Config) *Workflow {
	return &Workflow{
		generator: generator,
		selector:  selector,
		state:     State{Status: StatusIdle},
		prompt:    initial,
	}
}

// OnChange 注册状态变化回调
func (w *Workflow) OnChange(l Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// Snapshot 返回当前状态的副本
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	busy := w.state.Busy()
	return Snapshot{
		State:            w.state,
		HasCredential:    w.hasCredential,
		Prompt:           w.prompt,
		CanGenerateImage: !busy,
		CanGenerateVideo: !busy && w.state.ImageRef != "" && w.hasCredential,
	}
}

// commit 在持锁状态下修改状态，然后在锁外通知监听者。mutate 返回错误时不做任何修改。
func (w *Workflow) commit(mutate func() error) error {
	w.mu.Lock()
	if err := mutate(); err != nil {
		w.mu.Unlock()
		return err
	}
	snap := w.snapshotLocked()
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

// SetPromptConfig 更新提示词配置，生成过程中不允许修改
func (w *Workflow) SetPromptConfig(cfg prompt.Config) error {
	return w.commit(func() error {
		if w.state.Busy() {
			return ErrBusy
		}
		w.prompt = cfg
		return nil
	})
}

// RefreshCredential 询问 Selector 当前是否已选择可用凭证
func (w *Workflow) RefreshCredential(ctx context.Context) (bool, error) {
	ok, err := w.selector.HasCredential(ctx)
	if err != nil {
		return false, err
	}
	_ = w.commit(func() error {
		w.hasCredential = ok
		return nil
	})
	return ok, nil
}

// SelectCredential 请求用户选择凭证，成功后视为凭证可用
func (w *Workflow) SelectCredential(ctx context.Context) error {
	if err := w.selector.RequestCredential(ctx); err != nil {
		common.WithError(err).Warn("Credential selection failed")
		return err
	}
	return w.commit(func() error {
		w.hasCredential = true
		return nil
	})
}

// Job 已进入生成状态、等待执行的任务。Run 只会执行一次。
type Job struct {
	kind Status
	once sync.Once
	run  func(ctx context.Context) error
	err  error
}

// Kind 返回任务对应的生成状态
func (j *Job) Kind() Status {
	return j.kind
}

// Run 执行远程生成并把结果写回工作流
func (j *Job) Run(ctx context.Context) error {
	j.once.Do(func() { j.err = j.run(ctx) })
	return j.err
}

// BeginImage 进入 generating-image 状态（清除错误和旧视频），返回完成该状态的任务
func (w *Workflow) BeginImage() (*Job, error) {
	var promptText string
	err := w.commit(func() error {
		if w.state.Busy() {
			return ErrBusy
		}
		promptText = prompt.ImagePrompt(w.prompt)
		w.state.Status = StatusGeneratingImage
		w.state.ErrorMessage = ""
		w.state.VideoRef = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Job{
		kind: StatusGeneratingImage,
		run:  func(ctx context.Context) error { return w.runImage(ctx, promptText) },
	}, nil
}

func (w *Workflow) runImage(ctx context.Context, promptText string) error {
	common.Info("Generating wallpaper image")

	ref, err := w.generator.GenerateImage(ctx, promptText)
	_ = w.commit(func() error {
		if err != nil {
			w.state.Status = StatusError
			w.state.ErrorMessage = errorMessage(err, imageFailureMessage)
			return nil
		}
		w.state.ImageRef = ref
		w.state.Status = StatusIdle
		return nil
	})

	if err != nil {
		common.WithError(err).Error("Wallpaper image generation failed")
	}
	return err
}

// BeginVideo 进入 generating-video 状态，要求已有图片且凭证可用
func (w *Workflow) BeginVideo() (*Job, error) {
	var imageRef, promptText string
	err := w.commit(func() error {
		switch {
		case w.state.Busy():
			return ErrBusy
		case w.state.ImageRef == "":
			return ErrNoImage
		case !w.hasCredential:
			return ErrCredentialRequired
		}
		imageRef = w.state.ImageRef
		promptText = prompt.AnimationPrompt(w.prompt)
		w.state.Status = StatusGeneratingVideo
		w.state.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Job{
		kind: StatusGeneratingVideo,
		run:  func(ctx context.Context) error { return w.runVideo(ctx, imageRef, promptText) },
	}, nil
}

func (w *Workflow) runVideo(ctx context.Context, imageRef, promptText string) error {
	common.Info("Animating wallpaper")

	ref, err := w.generator.GenerateVideo(ctx, imageRef, promptText)
	_ = w.commit(func() error {
		if err != nil {
			w.state.Status = StatusError
			w.state.ErrorMessage = errorMessage(err, videoFailureMessage)
			// 服务端不认识当前 Key，需要重新选择
			if strings.Contains(err.Error(), credentialNotFoundMarker) {
				w.hasCredential = false
			}
			return nil
		}
		w.state.VideoRef = ref
		w.state.Status = StatusIdle
		return nil
	})

	if err != nil {
		common.WithError(err).Error("Wallpaper animation failed")
	}
	return err
}

// GenerateImage 同步执行图片生成
func (w *Workflow) GenerateImage(ctx context.Context) error {
	job, err := w.BeginImage()
	if err != nil {
		return err
	}
	return job.Run(ctx)
}

// GenerateVideo 同步执行视频生成
func (w *Workflow) GenerateVideo(ctx context.Context) error {
	job, err := w.BeginVideo()
	if err != nil {
		return err
	}
	return job.Run(ctx)
}

func errorMessage(err error, fallback string) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
