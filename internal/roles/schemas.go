package roles

// Reply schemas. Validation happens before unmarshal so a structurally wrong
// reply takes the conservative-default path instead of half-filling a struct.

const plannerSchema = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"type": "string", "enum": ["dispatch", "rewrite_plan", "log_entry", "idle"]},
    "task_id": {"type": "string"},
    "plan": {"type": "string"},
    "entry": {"type": "string"},
    "reason": {"type": "string"}
  }
}`

const workerSchema = `{
  "type": "object",
  "required": ["result", "summary"],
  "properties": {
    "result": {"type": "string", "enum": ["success", "failure"]},
    "summary": {"type": "string"},
    "progress_entry": {"type": "string"},
    "file_updates": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "proposals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["target", "content"],
        "properties": {
          "target": {"type": "string"},
          "content": {"type": "string"},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`

const reconsiderSchema = `{
  "type": "object",
  "required": ["met_intent", "quality_score"],
  "properties": {
    "met_intent": {"type": "boolean"},
    "quality_score": {"type": "integer", "minimum": 0, "maximum": 100},
    "notes": {"type": "string"}
  }
}`

const auditorSchema = `{
  "type": "object",
  "required": ["findings"],
  "properties": {
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["severity", "message"],
        "properties": {
          "severity": {"type": "string", "enum": ["info", "warning", "critical"]},
          "message": {"type": "string"}
        }
      }
    },
    "approvals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["target", "approved"],
        "properties": {
          "target": {"type": "string"},
          "content": {"type": "string"},
          "approved": {"type": "boolean"},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`

const drivesSchema = `{
  "type": "object",
  "required": ["goals"],
  "properties": {
    "goals": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`
