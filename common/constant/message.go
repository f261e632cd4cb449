package constant

const TicketOpeningTemplate = `Order %s is paid and waiting for fulfillment.

Order Details:
------------------------------------------
Order Number: %s
Amount: %s
Payment Method: %s
------------------------------------------
%s
Claim this ticket to start working on it.
`

const TicketCardAssignedLine = `An unused card has been reserved for this order.
`

const TicketNoCardLine = `WARNING: no unused card was available. Add inventory and re-assign before resolving.
`

const TicketClosingTemplate = `Ticket for order %s is closing. The channel will be removed shortly.`

const ForceCloseWarningTemplate = `Order %s is not resolved yet. Repeat the close request within %s to force-close.`

const LowInventoryAlertTemplate = `Low card inventory: %d unused card(s) remaining (threshold %d). Upload a new batch.`
