package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Timetable API",
        "description": "Automatic timetable generation, manual editing and collaborative sessions",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Scheduling", "description": "Auto-scheduling jobs"},
        {"name": "Constraints", "description": "Instructor, subject and locked-slot rules"},
        {"name": "Timetable", "description": "Manual timetable entries and validation"},
        {"name": "Realtime", "description": "Collaborative editing sessions"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/scheduling/auto-schedule": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Start an auto-scheduling job",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AutoScheduleRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Infeasible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/jobs": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "List scheduling jobs",
                "parameters": [
                    {"name": "semester_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["PENDING", "RUNNING", "COMPLETED", "FAILED", "CANCELLED"]},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/jobs/{id}": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Get scheduling job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/jobs/{id}/cancel": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Cancel a scheduling job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/instructors/constraints": {
            "get": {
                "tags": ["Constraints"],
                "summary": "List instructor constraints",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/instructors/{id}/constraints": {
            "get": {
                "tags": ["Constraints"],
                "summary": "Get instructor constraint",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Constraints"],
                "summary": "Upsert instructor constraint",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InstructorConstraintRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/subjects/constraints": {
            "get": {
                "tags": ["Constraints"],
                "summary": "List subject constraints",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/subjects/{id}/constraints": {
            "get": {
                "tags": ["Constraints"],
                "summary": "Get subject constraint",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Constraints"],
                "summary": "Upsert subject constraint",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubjectConstraintRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/locked-slots": {
            "get": {
                "tags": ["Constraints"],
                "summary": "List locked slots",
                "parameters": [
                    {"name": "semester_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Constraints"],
                "summary": "Create locked slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LockedSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduling/locked-slots/{id}": {
            "put": {
                "tags": ["Constraints"],
                "summary": "Update locked slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateLockedSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Constraints"],
                "summary": "Delete locked slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/timetable/entries": {
            "get": {
                "tags": ["Timetable"],
                "summary": "List timetable entries",
                "parameters": [
                    {"name": "academic_semester_id", "in": "query", "required": true, "type": "string"},
                    {"name": "classroom_id", "in": "query", "type": "string"},
                    {"name": "instructor_id", "in": "query", "type": "string"},
                    {"name": "room_id", "in": "query", "type": "string"},
                    {"name": "day_of_week", "in": "query", "type": "string"},
                    {"name": "include_inactive", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Timetable"],
                "summary": "Create timetable entry",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TimetableEntryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ConflictEnvelope"}}
                }
            }
        },
        "/timetable/entries/validate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Check a candidate entry for conflicts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TimetableEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ConflictEnvelope"}}
                }
            }
        },
        "/timetable/entries/{id}": {
            "put": {
                "tags": ["Timetable"],
                "summary": "Move or edit a timetable entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateTimetableEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ConflictEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Timetable"],
                "summary": "Deactivate a timetable entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/realtime/timetable/{semester_id}/ws": {
            "get": {
                "tags": ["Realtime"],
                "summary": "Join a collaborative session over WebSocket",
                "parameters": [
                    {"name": "semester_id", "in": "path", "required": true, "type": "string"},
                    {"name": "access_token", "in": "query", "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/realtime/timetable/{semester_id}/events": {
            "get": {
                "tags": ["Realtime"],
                "summary": "Follow a collaborative session over server-sent events",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "semester_id", "in": "path", "required": true, "type": "string"},
                    {"name": "access_token", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Event stream"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Scheduler and session counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TimeSlot": {
            "type": "object",
            "properties": {
                "day_of_week": {"type": "string"},
                "period_id": {"type": "string"}
            }
        },
        "QualityWeights": {
            "type": "object",
            "properties": {
                "time_of_day": {"type": "number"},
                "preferred_slot": {"type": "number"},
                "preferred_days": {"type": "number"},
                "distribution": {"type": "number"},
                "unplaced_penalty": {"type": "number"},
                "overload_penalty": {"type": "number"},
                "avoid_day_penalty": {"type": "number"}
            }
        },
        "AutoScheduleConfig": {
            "type": "object",
            "properties": {
                "force_overwrite": {"type": "boolean"},
                "allow_partial": {"type": "boolean"},
                "timeout_seconds": {"type": "integer"},
                "max_iterations": {"type": "integer"},
                "max_backtrack": {"type": "integer"},
                "min_quality_score": {"type": "number"},
                "days": {"type": "array", "items": {"type": "string"}},
                "weights": {"$ref": "#/definitions/QualityWeights"}
            }
        },
        "AutoScheduleRequest": {
            "type": "object",
            "properties": {
                "semester_id": {"type": "string"},
                "classroom_ids": {"type": "array", "items": {"type": "string"}},
                "algorithm": {"type": "string", "enum": ["GREEDY", "BACKTRACKING", "HYBRID"]},
                "config": {"$ref": "#/definitions/AutoScheduleConfig"}
            },
            "required": ["semester_id", "classroom_ids"]
        },
        "InstructorConstraintRequest": {
            "type": "object",
            "properties": {
                "hard_unavailable_slots": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}},
                "preferred_slots": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}},
                "max_periods_per_day": {"type": "integer"},
                "min_periods_per_day": {"type": "integer"},
                "preferred_days": {"type": "array", "items": {"type": "string"}},
                "avoid_days": {"type": "array", "items": {"type": "string"}},
                "assigned_room_id": {"type": "string"}
            }
        },
        "SubjectConstraintRequest": {
            "type": "object",
            "properties": {
                "periods_per_week": {"type": "integer"},
                "min_consecutive_periods": {"type": "integer"},
                "max_consecutive_periods": {"type": "integer"},
                "preferred_time_of_day": {"type": "string", "enum": ["MORNING", "AFTERNOON", "ANYTIME"]},
                "required_room_type": {"type": "string"}
            },
            "required": ["periods_per_week"]
        },
        "LockedSlotRequest": {
            "type": "object",
            "properties": {
                "academic_semester_id": {"type": "string"},
                "scope_type": {"type": "string", "enum": ["CLASSROOM", "GRADE_LEVEL", "ALL_SCHOOL"]},
                "scope_ids": {"type": "array", "items": {"type": "string"}},
                "subject_id": {"type": "string"},
                "day_of_week": {"type": "string"},
                "period_ids": {"type": "array", "items": {"type": "string"}},
                "room_id": {"type": "string"},
                "instructor_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["academic_semester_id", "scope_type", "subject_id", "day_of_week", "period_ids"]
        },
        "UpdateLockedSlotRequest": {
            "type": "object",
            "properties": {
                "scope_type": {"type": "string", "enum": ["CLASSROOM", "GRADE_LEVEL", "ALL_SCHOOL"]},
                "scope_ids": {"type": "array", "items": {"type": "string"}},
                "day_of_week": {"type": "string"},
                "period_ids": {"type": "array", "items": {"type": "string"}},
                "room_id": {"type": "string"},
                "instructor_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "TimetableEntryRequest": {
            "type": "object",
            "properties": {
                "academic_semester_id": {"type": "string"},
                "entry_type": {"type": "string", "enum": ["COURSE", "BREAK", "ACTIVITY", "HOMEROOM"]},
                "classroom_course_id": {"type": "string"},
                "classroom_id": {"type": "string"},
                "day_of_week": {"type": "string"},
                "period_id": {"type": "string"},
                "room_id": {"type": "string"},
                "instructor_ids": {"type": "array", "items": {"type": "string"}},
                "note": {"type": "string"},
                "force": {"type": "boolean"}
            },
            "required": ["academic_semester_id", "day_of_week", "period_id"]
        },
        "UpdateTimetableEntryRequest": {
            "type": "object",
            "properties": {
                "day_of_week": {"type": "string"},
                "period_id": {"type": "string"},
                "room_id": {"type": "string"},
                "clear_room": {"type": "boolean"},
                "note": {"type": "string"},
                "force": {"type": "boolean"}
            }
        },
        "TimetableConflict": {
            "type": "object",
            "properties": {
                "conflict_type": {"type": "string"},
                "message": {"type": "string"},
                "existing_entry": {"type": "object"}
            }
        },
        "ConflictValidation": {
            "type": "object",
            "properties": {
                "is_valid": {"type": "boolean"},
                "conflicts": {"type": "array", "items": {"$ref": "#/definitions/TimetableConflict"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        },
        "ConflictEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/ConflictValidation"},
                "error": {"$ref": "#/definitions/APIError"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
