package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	providerconfig "github.com/tiger/kobayashi/internal/provider/config"
	"github.com/tiger/kobayashi/internal/provider/contracts"
)

const (
	ProviderID = "tts-amazon-polly"

	maxAudioBytes = 8 << 20
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config enables Polly explicitly since AWS credentials come from the default chain.
type Config struct {
	Enabled bool
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

func (c Config) Configured() bool {
	return c.Enabled
}

type Adapter struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

func ConfigFromEnv(getenv providerconfig.Getenv) Config {
	enabled := strings.ToLower(strings.TrimSpace(getenv("KOBAYASHI_TTS_POLLY_ENABLED")))
	return Config{
		Enabled: enabled == "1" || enabled == "true" || enabled == "yes",
		Region:  providerconfig.DefaultString(getenv("KOBAYASHI_TTS_POLLY_REGION"), providerconfig.DefaultString(getenv("AWS_REGION"), "us-east-1")),
		VoiceID: providerconfig.DefaultString(getenv("KOBAYASHI_TTS_POLLY_VOICE"), "Joanna"),
		Engine:  providerconfig.DefaultString(getenv("KOBAYASHI_TTS_POLLY_ENGINE"), "neural"),
		Timeout: 15 * time.Second,
	}
}

func NewAdapter(cfg Config) (contracts.Adapter, error) {
	return NewAdapterWithClient(cfg, nil)
}

func NewAdapterWithClient(cfg Config, client synthClient) (contracts.Adapter, error) {
	cfg.Region = providerconfig.DefaultString(cfg.Region, "us-east-1")
	cfg.VoiceID = providerconfig.DefaultString(cfg.VoiceID, "Joanna")
	cfg.Engine = providerconfig.DefaultString(cfg.Engine, "neural")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{client: client, cfg: cfg}, nil
}

func NewAdapterFromEnv(getenv providerconfig.Getenv) (contracts.Adapter, error) {
	return NewAdapter(ConfigFromEnv(getenv))
}

func (a *Adapter) ProviderID() string {
	return ProviderID
}

func (a *Adapter) Modality() contracts.Modality {
	return contracts.ModalityTTS
}

func (a *Adapter) Invoke(ctx context.Context, req contracts.Request) (contracts.Response, error) {
	if err := req.Validate(); err != nil {
		return contracts.Response{}, err
	}
	if ctx.Err() != nil {
		return contracts.Response{Outcome: contracts.Cancelled()}, nil
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return contracts.Response{}, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(a.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voice := a.cfg.VoiceID
	if strings.TrimSpace(req.VoiceID) != "" {
		voice = strings.TrimSpace(req.VoiceID)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	text := req.Text
	output, err := client.SynthesizeSpeech(callCtx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice),
	})
	if err != nil {
		return contracts.Response{Outcome: normalizePollyError(err)}, nil
	}
	if output == nil || output.AudioStream == nil {
		return contracts.Response{Outcome: emptyAudio()}, nil
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(io.LimitReader(output.AudioStream, maxAudioBytes+1))
	if err != nil {
		return contracts.Response{Outcome: normalizePollyError(err)}, nil
	}
	if len(audio) == 0 || len(audio) > maxAudioBytes {
		return contracts.Response{Outcome: emptyAudio()}, nil
	}
	return contracts.Response{
		Outcome:     contracts.Outcome{Class: contracts.OutcomeSuccess},
		Audio:       audio,
		ContentType: "audio/mpeg",
	}, nil
}

func emptyAudio() contracts.Outcome {
	return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_empty_audio"}
}

func normalizePollyError(err error) contracts.Outcome {
	if errors.Is(err, context.Canceled) {
		return contracts.Cancelled()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.Outcome{Class: contracts.OutcomeTimeout, Retryable: true, Reason: "provider_timeout"}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return contracts.Outcome{Class: contracts.OutcomeOverload, Retryable: true, Reason: "provider_overload", CircuitOpen: true, BackoffMS: 500}
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return contracts.Outcome{Class: contracts.OutcomeBlocked, Reason: "provider_client_error"}
		case "AccessDeniedException", "UnrecognizedClientException":
			return contracts.Outcome{Class: contracts.OutcomeBlocked, Reason: "provider_auth_error"}
		default:
			return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_server_error", CircuitOpen: true}
		}
	}

	return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_transport_error"}
}

func (a *Adapter) resolveClient(ctx context.Context) (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = polly.NewFromConfig(awsCfg)
	return a.client, nil
}
