package workflow

// Modality is an independently gated data channel through the pipeline.
type Modality string

const (
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
	ModalityText  Modality = "text"
)

// Modalities lists every modality in a fixed order.
var Modalities = []Modality{ModalityVideo, ModalityAudio, ModalityText}

// NodeRole classifies a node's class type for validation and modality
// detection. The set is closed: anything not listed is RoleUnrecognized
// and ignored by both the validator and the detector.
type NodeRole int

const (
	RoleUnrecognized NodeRole = iota
	RolePrimaryInput
	RoleVideoInput
	RoleAudioInput
	RoleTextInput
	RoleVideoOutput
	RoleAudioOutput
	RoleTextOutput
)

// Canonical tensor-exchange node types. The converter rewrites recognized
// generic nodes into these so the backend reads its input from and writes
// its output to the tensor queues.
const (
	NodeTensorInput      = "LoadTensor"
	NodeTensorOutput     = "SaveTensor"
	NodeAudioTensorIn    = "LoadAudioTensor"
	NodeAudioTensorOut   = "SaveAudioTensor"
	NodeTextTensorIn     = "LoadTextTensor"
	NodeTextTensorOut    = "SaveTextTensor"
	NodePrimaryLoadImage = "PrimaryInputLoadImage"
)

// Generic node types recognized by the converter.
const (
	NodeLoadImage    = "LoadImage"
	NodePreviewImage = "PreviewImage"
	NodeSaveImage    = "SaveImage"
)

// roles is the fixed class-type registry. Mutating it at runtime is not
// supported; the validator and detector read it without locking.
var roles = map[string]NodeRole{
	NodePrimaryLoadImage: RolePrimaryInput,

	NodeLoadImage:     RoleVideoInput,
	NodeTensorInput:   RoleVideoInput,
	NodeAudioTensorIn: RoleAudioInput,
	NodeTextTensorIn:  RoleTextInput,

	NodePreviewImage:   RoleVideoOutput,
	NodeSaveImage:      RoleVideoOutput,
	NodeTensorOutput:   RoleVideoOutput,
	NodeAudioTensorOut: RoleAudioOutput,
	NodeTextTensorOut:  RoleTextOutput,
}

// RoleOf returns the role registered for a class type.
func RoleOf(classType string) NodeRole {
	return roles[classType]
}

// IsInput reports whether the role is any input role, primary included.
func (r NodeRole) IsInput() bool {
	switch r {
	case RolePrimaryInput, RoleVideoInput, RoleAudioInput, RoleTextInput:
		return true
	}
	return false
}

// IsOutput reports whether the role is any output role.
func (r NodeRole) IsOutput() bool {
	switch r {
	case RoleVideoOutput, RoleAudioOutput, RoleTextOutput:
		return true
	}
	return false
}

// InputModality returns the modality a node role consumes, if any.
func (r NodeRole) InputModality() (Modality, bool) {
	switch r {
	case RolePrimaryInput, RoleVideoInput:
		return ModalityVideo, true
	case RoleAudioInput:
		return ModalityAudio, true
	case RoleTextInput:
		return ModalityText, true
	}
	return "", false
}

// OutputModality returns the modality a node role produces, if any.
func (r NodeRole) OutputModality() (Modality, bool) {
	switch r {
	case RoleVideoOutput:
		return ModalityVideo, true
	case RoleAudioOutput:
		return ModalityAudio, true
	case RoleTextOutput:
		return ModalityText, true
	}
	return "", false
}
