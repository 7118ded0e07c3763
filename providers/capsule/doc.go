// Package capsule implements the providers.Provider interface for Capsule CRM.
//
// Contacts are Capsule "parties" (people and organisations). Email addresses and
// phone numbers are lists; the first entry is used, and a phone number typed
// "Mobile" is reported separately.
package capsule
