package api

const createDisputeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount", "currency", "reason", "payment_method_details"],
  "properties": {
    "amount": {"type": "integer", "exclusiveMinimum": 0},
    "currency": {"type": "string", "pattern": "^[a-z]{3}$"},
    "reason": {"type": "string", "enum": [
      "credit_not_processed", "duplicate", "fraudulent", "general",
      "product_not_received", "product_unacceptable",
      "subscription_canceled", "unrecognized"
    ]},
    "charge": {"type": "string", "pattern": "^ch_[A-Za-z0-9]{24}$"},
    "payment_intent": {"type": "string"},
    "due_by": {"type": "integer", "minimum": 0},
    "point_of_sale": {"type": "boolean"},
    "foreign_transaction": {"type": "boolean"},
    "payment_method_details": {
      "type": "object",
      "additionalProperties": false,
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["card", "paypal", "klarna"]},
        "card": {
          "type": "object",
          "additionalProperties": false,
          "required": ["token", "brand", "funding"],
          "properties": {
            "token": {"type": "string", "pattern": "^tok_[A-Za-z0-9]{24}$"},
            "brand": {"type": "string", "enum": ["visa", "mastercard", "amex", "discover", "jcb", "diners", "unionpay"]},
            "funding": {"type": "string", "enum": ["credit", "debit", "prepaid", "unknown"]},
            "network_reason_code": {"type": "string"}
          }
        },
        "paypal": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "payer_email": {"type": "string"},
            "transaction_id": {"type": "string"}
          }
        },
        "klarna": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "reason_code": {"type": "string"}
          }
        }
      }
    }
  }
}`

// Evidence bodies are open-keyed: the validator reports unknown and
// oversized fields itself so the caller gets the full error list, and the
// tokenization guard must see raw keys before any shape filtering.
const submitEvidenceSchema = `{
  "type": "object",
  "properties": {
    "service_date": {"type": "string"},
    "shipping_date": {"type": "string"}
  }
}`

const evaluateEligibilitySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["prior_transactions"],
  "properties": {
    "prior_transactions": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["charge"],
        "properties": {
          "charge": {"type": "string", "pattern": "^ch_[A-Za-z0-9]{24}$"},
          "charge_date": {"type": "integer", "minimum": 0},
          "customer_email_address": {"type": "string"},
          "customer_purchase_ip": {"type": "string"},
          "customer_device_fingerprint": {"type": "string"},
          "customer_device_id": {"type": "string"},
          "shipping_address": {"type": "string"}
        }
      }
    }
  }
}`

const resolveDisputeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["outcome"],
  "properties": {
    "outcome": {"type": "string", "enum": ["won", "lost", "charge_refunded", "warning_closed"]}
  }
}`
